// Package memstore provides an in-memory store.Backend. Rows are kept as BSON
// documents, so entities handed to the store are never aliased by it.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/store"
)

// ErrAlreadyExists is returned when inserting a row whose key is taken.
var ErrAlreadyExists = errors.New("memstore: entity already exists")

type table struct {
	rows  map[string]bson.Raw
	order []string
}

// Store is an in-memory store.Backend.
type Store struct {
	mu       sync.RWMutex
	registry *store.Registry
	tables   map[string]*table
	logger   *zap.Logger
}

var _ store.Backend = (*Store)(nil)

// New creates an empty Store for the types defined in registry.
func New(registry *store.Registry, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		registry: registry,
		tables:   make(map[string]*table),
		logger:   logger,
	}
}

// Begin starts a session. Loads observe committed rows.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	return &session{store: s}, nil
}

// Find returns the rows matching q.
func (s *Store) Find(ctx context.Context, q store.Query) ([]store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.match(q)
	if err != nil {
		return nil, err
	}
	if col, desc := q.SortColumn(); col != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareRaw(docs[i].Lookup(col), docs[j].Lookup(col))
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(docs) {
			docs = nil
		} else {
			docs = docs[q.Offset:]
		}
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return s.decodeAll(q.Type, docs)
}

// Count returns the number of rows matching q.
func (s *Store) Count(ctx context.Context, q store.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.match(q)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Len returns the number of rows of an entity type, deleted ones included.
func (s *Store) Len(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[entityType]; ok {
		return len(t.rows)
	}
	return 0
}

// match returns rows of q.Type in insertion order. Callers hold s.mu.
func (s *Store) match(q store.Query) ([]bson.Raw, error) {
	if _, ok := s.registry.SchemaOf(q.Type); !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownType, q.Type)
	}
	conds, err := encodeConditions(q.Where)
	if err != nil {
		return nil, err
	}

	t, ok := s.tables[q.Type]
	if !ok {
		return nil, nil
	}
	var out []bson.Raw
	for _, ref := range t.order {
		doc := t.rows[ref]
		if !q.WithDeleted && isDeleted(doc) {
			continue
		}
		if matches(doc, conds) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *Store) decodeAll(entityType string, docs []bson.Raw) ([]store.Entity, error) {
	schema, ok := s.registry.SchemaOf(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownType, entityType)
	}
	out := make([]store.Entity, 0, len(docs))
	for _, doc := range docs {
		e := schema.New()
		if err := bson.Unmarshal(doc, e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entityType, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// apply validates and applies a mutation set under the write lock.
func (s *Store) apply(set *store.MutationSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type write struct {
		kind store.MutationKind
		typ  string
		ref  string
		doc  bson.Raw
	}
	writes := make([]write, 0, set.Len())

	for _, m := range set.Mutations() {
		typ := m.Entity.EntityType()
		if _, ok := s.registry.SchemaOf(typ); !ok {
			return fmt.Errorf("%w: %s", store.ErrUnknownType, typ)
		}
		ref := store.Ref(m.Entity)
		_, exists := s.lookup(typ, ref)

		switch m.Kind {
		case store.Insert:
			if exists {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, ref)
			}
		default:
			if !exists {
				return fmt.Errorf("%w: %s", store.ErrConcurrentModification, ref)
			}
		}

		var doc bson.Raw
		if m.Kind != store.Remove {
			b, err := bson.Marshal(m.Entity)
			if err != nil {
				return fmt.Errorf("encode %s: %w", ref, err)
			}
			doc = b
		}
		writes = append(writes, write{kind: m.Kind, typ: typ, ref: ref, doc: doc})
	}

	for _, w := range writes {
		t := s.tables[w.typ]
		if t == nil {
			t = &table{rows: make(map[string]bson.Raw)}
			s.tables[w.typ] = t
		}
		switch w.kind {
		case store.Insert:
			t.order = append(t.order, w.ref)
			t.rows[w.ref] = w.doc
		case store.Update:
			t.rows[w.ref] = w.doc
		case store.Remove:
			delete(t.rows, w.ref)
			for i, ref := range t.order {
				if ref == w.ref {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
		}
	}

	s.logger.Debug("committed", zap.Int("writes", len(writes)))
	return nil
}

func (s *Store) lookup(entityType, ref string) (bson.Raw, bool) {
	t, ok := s.tables[entityType]
	if !ok {
		return nil, false
	}
	doc, ok := t.rows[ref]
	return doc, ok
}
