// Package mongostore implements store.Backend over MongoDB.
//
// Entities are encoded with the bson codec, so they need bson tags whose
// names match the column names used in queries and foreign keys. The key
// property "id" is stored as _id. Embedded store.Base must be tagged
// `bson:",inline"`.
//
// Sessions run in a multi-document transaction, which requires a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/store"
)

// ErrAlreadyExists is returned when inserting a document whose key is taken.
var ErrAlreadyExists = errors.New("mongostore: entity already exists")

// Store is a store.Backend over MongoDB.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	registry *store.Registry
	config   Config
}

var _ store.Backend = (*Store)(nil)

// New creates a Store over a connected client.
func New(client *mongo.Client, registry *store.Registry, config Config) *Store {
	config.validate()
	return &Store{
		client:   client,
		db:       client.Database(config.Database),
		registry: registry,
		config:   config,
	}
}

// Connect connects to uri, pings the server and returns a Store.
func Connect(ctx context.Context, uri string, registry *store.Registry, config Config) (*Store, error) {
	config.validate()
	opts := options.Client().ApplyURI(uri)
	opts.SetConnectTimeout(config.Timeout).SetServerSelectionTimeout(config.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(client, registry, config), nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database returns the database used by the Store.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Begin starts a client session with an open transaction.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return &session{store: s, sess: sess}, nil
}

// Find returns the documents matching q.
func (s *Store) Find(ctx context.Context, q store.Query) ([]store.Entity, error) {
	return s.find(ctx, q)
}

// Count returns the number of documents matching q.
func (s *Store) Count(ctx context.Context, q store.Query) (int64, error) {
	schema, err := s.schema(q.Type)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(schema.Table).CountDocuments(ctx, filter(q))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", schema.Table, err)
	}
	return n, nil
}

// find runs q with ctx, which carries the session when called from one.
func (s *Store) find(ctx context.Context, q store.Query) ([]store.Entity, error) {
	schema, err := s.schema(q.Type)
	if err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(schema.Table).Find(ctx, filter(q), findOptions(q))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", schema.Table, err)
	}
	defer cursor.Close(ctx)

	var out []store.Entity
	for cursor.Next(ctx) {
		e := schema.New()
		if err := cursor.Decode(e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", schema.Type, err)
		}
		out = append(out, e)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", schema.Table, err)
	}
	return out, nil
}

func (s *Store) schema(entityType string) (store.Schema, error) {
	schema, ok := s.registry.SchemaOf(entityType)
	if !ok || schema.New == nil {
		return store.Schema{}, fmt.Errorf("%w: %s", store.ErrUnknownType, entityType)
	}
	if schema.Table == "" {
		schema.Table = entityType
	}
	return schema, nil
}

// fieldName maps the "id" key property to the document _id.
func fieldName(column string) string {
	if column == "id" {
		return "_id"
	}
	return column
}

// filter builds the equality filter of q. A null deleted_at condition also
// matches documents without the field.
func filter(q store.Query) bson.D {
	cols := make([]string, 0, len(q.Where))
	for col := range q.Where {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	f := bson.D{}
	for _, col := range cols {
		f = append(f, bson.E{Key: fieldName(col), Value: q.Where[col]})
	}
	if !q.WithDeleted {
		f = append(f, bson.E{Key: "deleted_at", Value: nil})
	}
	return f
}

// findOptions sorts by the requested column, then by _id for stable paging.
func findOptions(q store.Query) *options.FindOptions {
	opts := options.Find()

	sortDoc := bson.D{}
	if col, desc := q.SortColumn(); col != "" {
		direction := 1
		if desc {
			direction = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: fieldName(col), Value: direction})
	}
	if len(sortDoc) == 0 || sortDoc[0].Key != "_id" {
		sortDoc = append(sortDoc, bson.E{Key: "_id", Value: 1})
	}
	opts.SetSort(sortDoc)

	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	return opts
}

func (s *Store) logger() *zap.Logger {
	return s.config.Logger
}
