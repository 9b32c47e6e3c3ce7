package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/internal/structmap"
	"github.com/jacentio/tombstone/store"
)

// session wraps one transaction. Loads run inside it.
type session struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

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
	return s.store.find(ctx, s.tx, q)
}

// Commit executes the staged writes in order and commits the transaction.
// Any failure rolls everything back.
func (s *session) Commit(ctx context.Context, set *store.MutationSet) error {
	if s.done {
		return store.ErrSessionClosed
	}
	s.done = true

	for _, m := range set.Mutations() {
		if err := s.exec(ctx, m); err != nil {
			if rerr := s.tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				err = multierr.Append(err, fmt.Errorf("rollback: %w", rerr))
			}
			return err
		}
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.store.config.Logger.Debug("committed", zap.Int("writes", set.Len()))
	return nil
}

func (s *session) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (s *session) exec(ctx context.Context, m store.Mutation) error {
	t, err := s.store.table(m.Entity.EntityType())
	if err != nil {
		return err
	}
	key := t.schema.KeyColumn()
	ref := store.Ref(m.Entity)

	var stmt squirrel.Sqlizer
	switch m.Kind {
	case store.Insert:
		stmt = s.store.builder.Insert(t.schema.Table).SetMap(structmap.ToMap(m.Entity))
	case store.Update:
		values := structmap.ToMap(m.Entity)
		delete(values, key)
		stmt = s.store.builder.Update(t.schema.Table).
			SetMap(values).
			Where(squirrel.Eq{key: m.Entity.Key()})
	case store.Remove:
		stmt = s.store.builder.Delete(t.schema.Table).
			Where(squirrel.Eq{key: m.Entity.Key()})
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build %s %s: %w", m.Kind, ref, err)
	}
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", m.Kind, ref, err)
	}
	if m.Kind == store.Insert {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", m.Kind, ref, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrConcurrentModification, ref)
	}
	return nil
}
