package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/store"
)

// session wraps a client session with an open transaction. Loads read through
// the transaction, so they see its snapshot.
type session struct {
	store *Store
	sess  mongo.Session
	done  bool
}

// Load returns the non-deleted documents of rel.TargetType whose foreign key
// equals the source key.
func (s *session) Load(ctx context.Context, source store.Entity, rel store.Relation) ([]store.Entity, error) {
	if s.done {
		return nil, store.ErrSessionClosed
	}
	if rel.ForeignKey == "" {
		return nil, fmt.Errorf("relation %s.%s has no foreign key", rel.SourceType, rel.Name)
	}

	q := store.Query{
		Type:  rel.TargetType,
		Where: map[string]any{rel.ForeignKey: source.Key()},
	}
	if rel.Cardinality == store.One {
		q.Limit = 1
	}
	rows, err := s.store.find(mongo.NewSessionContext(ctx, s.sess), q)
	if err != nil {
		return nil, err
	}

	s.store.logger().Debug("loaded relation",
		zap.String("source", store.Ref(source)),
		zap.String("relation", rel.Name),
		zap.Int("loaded", len(rows)),
	)
	return rows, nil
}

// Commit applies the set inside the transaction and commits it. On failure
// the transaction is aborted.
func (s *session) Commit(ctx context.Context, set *store.MutationSet) error {
	if s.done {
		return store.ErrSessionClosed
	}
	s.done = true
	defer s.sess.EndSession(ctx)

	sctx := mongo.NewSessionContext(ctx, s.sess)
	for _, m := range set.Mutations() {
		if err := s.exec(sctx, m); err != nil {
			if aerr := s.sess.AbortTransaction(ctx); aerr != nil {
				err = multierr.Append(err, fmt.Errorf("abort: %w", aerr))
			}
			return err
		}
	}
	if err := s.sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.store.logger().Debug("committed", zap.Int("mutations", set.Len()))
	return nil
}

// Close aborts the transaction unless it was committed.
func (s *session) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	defer s.sess.EndSession(ctx)
	return s.sess.AbortTransaction(ctx)
}

func (s *session) exec(ctx context.Context, m store.Mutation) error {
	schema, err := s.store.schema(m.Entity.EntityType())
	if err != nil {
		return err
	}
	coll := s.store.db.Collection(schema.Table)
	ref := store.Ref(m.Entity)
	byKey := bson.D{{Key: "_id", Value: m.Entity.Key()}}

	switch m.Kind {
	case store.Insert:
		if _, err := coll.InsertOne(ctx, m.Entity); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, ref)
			}
			return fmt.Errorf("insert %s: %w", ref, err)
		}

	case store.Update:
		res, err := coll.ReplaceOne(ctx, byKey, m.Entity)
		if err != nil {
			return fmt.Errorf("update %s: %w", ref, err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: %s", store.ErrConcurrentModification, ref)
		}

	case store.Remove:
		res, err := coll.DeleteOne(ctx, byKey)
		if err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
		if res.DeletedCount == 0 {
			return fmt.Errorf("%w: %s", store.ErrConcurrentModification, ref)
		}
	}
	return nil
}
