// Command purger is the Lambda function attached to the entity table streams.
// It schedules tombstoned items, and their relationship records, for removal
// by DynamoDB TTL once the retention period has passed.
//
// Environment:
//
//	TOMBSTONE_RETENTION           tombstone retention, e.g. 720h (default 30 days)
//	TOMBSTONE_RELATIONSHIP_TABLE  relationship table name
//	TOMBSTONE_SHARDS              shards per parent, must match the writers
//	TOMBSTONE_LOG_LEVEL           zap level (default info)
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jacentio/tombstone/dynamostore"
	"github.com/jacentio/tombstone/store"
	"github.com/jacentio/tombstone/stream"
)

func main() {
	h, err := newHandler(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	lambda.Start(h.HandlePurge)
}

func newHandler(ctx context.Context) (*stream.Handler, error) {
	v := viper.New()
	v.SetEnvPrefix("TOMBSTONE")
	v.AutomaticEnv()
	v.SetDefault("retention", stream.DefaultConfig().Retention)
	v.SetDefault("relationship_table", dynamostore.DefaultConfig().RelationshipTable)
	v.SetDefault("shards", 1)
	v.SetDefault("log_level", "info")

	zc := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(v.GetString("log_level")); err == nil {
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	storeCfg := dynamostore.DefaultConfig()
	storeCfg.RelationshipTable = v.GetString("relationship_table")
	storeCfg.NumShards = v.GetInt("shards")
	storeCfg.Logger = logger
	// The purger only touches tables and keys named by stream records, so it
	// needs no entity types.
	s := dynamostore.New(dynamodb.NewFromConfig(awsCfg), store.NewRegistry(), storeCfg)

	logger.Info("purger starting",
		zap.Duration("retention", v.GetDuration("retention")),
		zap.String("relationship_table", storeCfg.RelationshipTable),
		zap.Int("shards", storeCfg.NumShards),
	)
	return stream.NewHandler(s, stream.Config{
		Retention: v.GetDuration("retention"),
		Logger:    logger,
	}), nil
}
