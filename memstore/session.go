package memstore

import (
	"context"
	"fmt"

	"github.com/jacentio/tombstone/store"
)

type session struct {
	store  *Store
	closed bool
}

// Load returns the non-deleted rows of rel.TargetType whose foreign key
// equals the source key.
func (s *session) Load(ctx context.Context, source store.Entity, rel store.Relation) ([]store.Entity, error) {
	if s.closed {
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
	return s.store.Find(ctx, q)
}

func (s *session) Commit(ctx context.Context, set *store.MutationSet) error {
	if s.closed {
		return store.ErrSessionClosed
	}
	s.closed = true
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.apply(set)
}

func (s *session) Close(ctx context.Context) error {
	s.closed = true
	return nil
}
