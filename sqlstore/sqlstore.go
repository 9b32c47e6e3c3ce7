// Package sqlstore implements store.Backend over database/sql.
//
// Statements are built with squirrel and rows are scanned with scany. Entity
// columns come from "db" struct tags; navigation fields must be tagged
// `db:"-"`. Every table needs a nullable deleted_at column and a single
// primary key column named by the schema's KeyColumn.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/internal/structmap"
	"github.com/jacentio/tombstone/store"
)

const deletedAtColumn = "deleted_at"

// Config holds configuration for the Store.
type Config struct {
	// Placeholder is the bind variable format. Default: squirrel.Question.
	// Use squirrel.Dollar for PostgreSQL.
	Placeholder squirrel.PlaceholderFormat

	// Logger receives debug output for executed statements. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Placeholder: squirrel.Question,
		Logger:      zap.NewNop(),
	}
}

func (c *Config) validate() {
	if c.Placeholder == nil {
		c.Placeholder = squirrel.Question
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// PlaceholderFor returns the placeholder format of a database/sql driver name.
func PlaceholderFor(driverName string) squirrel.PlaceholderFormat {
	switch driverName {
	case "pgx", "postgres":
		return squirrel.Dollar
	default:
		return squirrel.Question
	}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// table is the resolved SQL mapping of one entity type.
type table struct {
	schema  store.Schema
	columns []string
}

// Store is a store.Backend over a *sql.DB.
type Store struct {
	db       *sql.DB
	registry *store.Registry
	config   Config
	builder  squirrel.StatementBuilderType

	mu     sync.Mutex
	tables map[string]*table
}

var _ store.Backend = (*Store)(nil)

// New creates a new Store.
func New(db *sql.DB, registry *store.Registry, cfg Config) *Store {
	cfg.validate()
	return &Store{
		db:       db,
		registry: registry,
		config:   cfg,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(cfg.Placeholder),
		tables:   make(map[string]*table),
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin starts a transaction-backed session.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &session{store: s, tx: tx}, nil
}

// Find returns the rows matching q outside any transaction.
func (s *Store) Find(ctx context.Context, q store.Query) ([]store.Entity, error) {
	return s.find(ctx, s.db, q)
}

// Count returns the number of rows matching q.
func (s *Store) Count(ctx context.Context, q store.Query) (int64, error) {
	t, err := s.table(q.Type)
	if err != nil {
		return 0, err
	}
	sel, err := s.filter(s.builder.Select("COUNT(*)").From(t.schema.Table), t, q)
	if err != nil {
		return 0, err
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.schema.Table, err)
	}
	return n, nil
}

func (s *Store) find(ctx context.Context, db querier, q store.Query) ([]store.Entity, error) {
	t, err := s.table(q.Type)
	if err != nil {
		return nil, err
	}
	sel, err := s.filter(s.builder.Select(t.columns...).From(t.schema.Table), t, q)
	if err != nil {
		return nil, err
	}

	col, desc := q.SortColumn()
	if col == "" {
		col = t.schema.KeyColumn()
	} else if !slices.Contains(t.columns, col) {
		return nil, fmt.Errorf("invalid sort column %q for %s", col, q.Type)
	}
	if desc {
		sel = sel.OrderBy(col + " DESC")
	} else {
		sel = sel.OrderBy(col)
	}
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		if q.Limit <= 0 {
			// SQLite rejects OFFSET without LIMIT.
			sel = sel.Limit(uint64(1<<63 - 1))
		}
		sel = sel.Offset(uint64(q.Offset))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	s.config.Logger.Debug("query", zap.String("sql", query))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.schema.Table, err)
	}
	defer rows.Close()

	var out []store.Entity
	for rows.Next() {
		e := t.schema.New()
		if err := sqlscan.ScanRow(e, rows); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.schema.Table, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", t.schema.Table, err)
	}
	return out, nil
}

// filter applies the equality conditions and the soft-delete filter.
func (s *Store) filter(sel squirrel.SelectBuilder, t *table, q store.Query) (squirrel.SelectBuilder, error) {
	if len(q.Where) > 0 {
		for col := range q.Where {
			if !slices.Contains(t.columns, col) {
				return sel, fmt.Errorf("invalid filter column %q for %s", col, q.Type)
			}
		}
		sel = sel.Where(squirrel.Eq(q.Where))
	}
	if !q.WithDeleted {
		sel = sel.Where(squirrel.Eq{deletedAtColumn: nil})
	}
	return sel, nil
}

func (s *Store) table(entityType string) (*table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[entityType]; ok {
		return t, nil
	}
	schema, ok := s.registry.SchemaOf(entityType)
	if !ok || schema.New == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownType, entityType)
	}
	t := &table{schema: schema, columns: structmap.Columns(schema.New())}
	if t.schema.Table == "" {
		t.schema.Table = entityType
	}
	s.tables[entityType] = t
	return t, nil
}
