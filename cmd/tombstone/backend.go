package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/jacentio/tombstone/dynamostore"
	"github.com/jacentio/tombstone/internal/shop"
	"github.com/jacentio/tombstone/mongostore"
	"github.com/jacentio/tombstone/sqlstore"
	"github.com/jacentio/tombstone/store"
)

// backend is an opened store.Backend with its schema setup and teardown.
type backend struct {
	store.Backend

	// migrate creates the shop schema.
	migrate func(ctx context.Context) error

	// close releases connections.
	close func() error
}

func openBackend(ctx context.Context, cfg *Config, registry *store.Registry, logger *zap.Logger) (*backend, error) {
	switch cfg.Backend {
	case "sqlite":
		dsn := "file:" + cfg.SQLite.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		return openSQL(ctx, "sqlite", "sqlite", dsn, registry, logger)
	case "postgres":
		return openSQL(ctx, "pgx", "postgres", cfg.Postgres.DSN, registry, logger)
	case "mongo":
		return openMongo(ctx, cfg.Mongo, registry, logger)
	case "dynamodb":
		return openDynamoDB(ctx, cfg.DynamoDB, registry, logger)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openSQL(ctx context.Context, driverName, dialect, dsn string, registry *store.Registry, logger *zap.Logger) (*backend, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	cfg := sqlstore.DefaultConfig()
	cfg.Placeholder = sqlstore.PlaceholderFor(driverName)
	cfg.Logger = logger

	return &backend{
		Backend: sqlstore.New(db, registry, cfg),
		migrate: func(ctx context.Context) error {
			stmts, err := shop.DDL(dialect)
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
		close: db.Close,
	}, nil
}

func openMongo(ctx context.Context, mc MongoConfig, registry *store.Registry, logger *zap.Logger) (*backend, error) {
	cfg := mongostore.DefaultConfig()
	cfg.Database = mc.Database
	cfg.Logger = logger

	s, err := mongostore.Connect(ctx, mc.URI, registry, cfg)
	if err != nil {
		return nil, err
	}

	return &backend{
		Backend: s,
		migrate: func(ctx context.Context) error {
			return createForeignKeyIndexes(ctx, s.Database(), registry)
		},
		close: func() error { return s.Close(context.Background()) },
	}, nil
}

// createForeignKeyIndexes indexes the foreign key of every loadable relation
// so that cascade loads do not scan collections.
func createForeignKeyIndexes(ctx context.Context, db *mongo.Database, registry *store.Registry) error {
	for _, rel := range registry.AllRelations() {
		if rel.OnDependent || rel.ForeignKey == "" || rel.ForeignKey == "id" {
			continue
		}
		schema, ok := registry.SchemaOf(rel.TargetType)
		if !ok {
			continue
		}
		_, err := db.Collection(schema.Table).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: rel.ForeignKey, Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("index %s.%s: %w", schema.Table, rel.ForeignKey, err)
		}
	}
	return nil
}

func openDynamoDB(ctx context.Context, dc DynamoDBConfig, registry *store.Registry, logger *zap.Logger) (*backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(dc.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if dc.Endpoint != "" {
			o.BaseEndpoint = aws.String(dc.Endpoint)
		}
	})

	cfg := dynamostore.DefaultConfig()
	cfg.RelationshipTable = dc.RelationshipTable
	cfg.NumShards = dc.Shards
	cfg.Logger = logger

	return &backend{
		Backend: dynamostore.New(client, registry, cfg),
		migrate: func(ctx context.Context) error {
			return shop.CreateTables(ctx, client, dc.TablePrefix, dc.RelationshipTable)
		},
		close: func() error { return nil },
	}, nil
}
