package store

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

var tracer = otel.Tracer("github.com/jacentio/tombstone/store")

// ListOptions filters and paginates reads.
type ListOptions struct {
	// Where holds equality conditions keyed by column/attribute name.
	Where map[string]any

	// OrderBy is a column name, prefixed with "-" for descending order.
	OrderBy string

	// Index is the zero-based page index.
	Index int

	// Size is the page size. Zero uses Config.DefaultPageSize.
	Size int

	// WithDeleted includes soft-deleted rows.
	WithDeleted bool
}

// Repository provides typed CRUD and soft delete for one entity type.
type Repository[T Entity] struct {
	entityType string
	backend    Backend
	engine     *Engine
}

// NewRepository creates a repository for the entity type registered as
// entityType. T must be the type the backend decodes that entity type into.
func NewRepository[T Entity](entityType string, backend Backend, engine *Engine) *Repository[T] {
	return &Repository[T]{
		entityType: entityType,
		backend:    backend,
		engine:     engine,
	}
}

// Add stamps CreatedAt and inserts the entity.
func (r *Repository[T]) Add(ctx context.Context, entity T) (T, error) {
	_, err := r.AddRange(ctx, []T{entity})
	return entity, err
}

// AddRange stamps CreatedAt and inserts all entities in one commit.
func (r *Repository[T]) AddRange(ctx context.Context, entities []T) ([]T, error) {
	err := r.write(ctx, "add", func(ctx context.Context, sess Session) (*MutationSet, error) {
		now := r.engine.config.Now()
		set := NewMutationSet()
		for _, e := range entities {
			e.Stamps().CreatedAt = now
			set.Insert(e)
		}
		return set, nil
	})
	return entities, err
}

// Update stamps UpdatedAt and rewrites the entity.
func (r *Repository[T]) Update(ctx context.Context, entity T) (T, error) {
	_, err := r.UpdateRange(ctx, []T{entity})
	return entity, err
}

// UpdateRange stamps UpdatedAt and rewrites all entities in one commit.
func (r *Repository[T]) UpdateRange(ctx context.Context, entities []T) ([]T, error) {
	err := r.write(ctx, "update", func(ctx context.Context, sess Session) (*MutationSet, error) {
		now := r.engine.config.Now()
		set := NewMutationSet()
		for _, e := range entities {
			e.Stamps().UpdatedAt = &now
			set.Update(e)
		}
		return set, nil
	})
	return entities, err
}

// Delete soft-deletes the entity and everything reachable from it through
// cascading relations, then commits the closure atomically. With permanent
// set, the entity is physically removed instead; cascading is then left to
// the backend's referential integrity.
func (r *Repository[T]) Delete(ctx context.Context, entity T, permanent bool) (T, error) {
	_, err := r.DeleteRange(ctx, []T{entity}, permanent)
	return entity, err
}

// DeleteRange deletes all entities in one commit. Soft deletes share one
// cascade pass, so entities reachable from several roots are staged once.
func (r *Repository[T]) DeleteRange(ctx context.Context, entities []T, permanent bool) ([]T, error) {
	name := "soft_delete"
	if permanent {
		name = "hard_delete"
	}
	err := r.write(ctx, name, func(ctx context.Context, sess Session) (*MutationSet, error) {
		if permanent {
			set := NewMutationSet()
			for _, e := range entities {
				set.Remove(e)
			}
			return set, nil
		}
		roots := make([]Entity, len(entities))
		for i, e := range entities {
			roots[i] = e
		}
		return r.engine.SoftDelete(ctx, sess, roots...)
	})
	return entities, err
}

// Get returns the first row matching opts, or ErrNotFound.
func (r *Repository[T]) Get(ctx context.Context, opts ListOptions) (T, error) {
	var zero T
	rows, err := r.backend.Find(ctx, r.query(opts, 1, 0))
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return r.cast(rows[0])
}

// GetByKey returns the non-deleted row with the given primary key.
func (r *Repository[T]) GetByKey(ctx context.Context, key any) (T, error) {
	schema, ok := r.engine.registry.SchemaOf(r.entityType)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrUnknownType, r.entityType)
	}
	return r.Get(ctx, ListOptions{Where: map[string]any{schema.KeyColumn(): key}})
}

// List returns one page of rows matching opts.
func (r *Repository[T]) List(ctx context.Context, opts ListOptions) (Page[T], error) {
	size := opts.Size
	if size <= 0 {
		size = r.engine.config.DefaultPageSize
	}
	index := opts.Index
	if index < 0 {
		index = 0
	}

	count, err := r.backend.Count(ctx, r.query(opts, 0, 0))
	if err != nil {
		return Page[T]{}, err
	}
	rows, err := r.backend.Find(ctx, r.query(opts, size, index*size))
	if err != nil {
		return Page[T]{}, err
	}

	items := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := r.cast(row)
		if err != nil {
			return Page[T]{}, err
		}
		items = append(items, item)
	}
	return NewPage(items, index, size, count), nil
}

// Any reports whether at least one row matches opts.
func (r *Repository[T]) Any(ctx context.Context, opts ListOptions) (bool, error) {
	rows, err := r.backend.Find(ctx, r.query(opts, 1, 0))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *Repository[T]) query(opts ListOptions, limit, offset int) Query {
	return Query{
		Type:        r.entityType,
		Where:       opts.Where,
		OrderBy:     opts.OrderBy,
		Limit:       limit,
		Offset:      offset,
		WithDeleted: opts.WithDeleted,
	}
}

func (r *Repository[T]) cast(e Entity) (T, error) {
	t, ok := e.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("tombstone: backend returned %T for %s, want %T", e, r.entityType, zero)
	}
	return t, nil
}

// write runs stage in a new session and commits the staged set.
func (r *Repository[T]) write(ctx context.Context, name string, stage func(context.Context, Session) (*MutationSet, error)) (err error) {
	ctx, span := tracer.Start(ctx, "tombstone."+name,
		trace.WithAttributes(attribute.String("entity.type", r.entityType)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sess, err := r.backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close session: %w", cerr))
		}
	}()

	set, err := stage(ctx, sess)
	if err != nil {
		return err
	}

	staged := set.Len()
	span.SetAttributes(attribute.Int("tombstone.staged", staged))
	if err := sess.Commit(ctx, set); err != nil {
		set.Discard()
		var ce *CommitError
		if errors.As(err, &ce) {
			return err
		}
		return &CommitError{Staged: staged, Err: err}
	}
	return nil
}
