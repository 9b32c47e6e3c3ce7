package dynamostore

import (
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/internal/shard"
)

// MaxTransactionItems is the DynamoDB limit on items per TransactWriteItems call.
const MaxTransactionItems = 100

// Config holds configuration for the Store.
type Config struct {
	// RelationshipTable is the name of the relationship table.
	// Default: "tombstone_relationships"
	RelationshipTable string

	// NumShards is the number of shards for the relationship table.
	// Higher values spread the children of one parent over more partitions
	// but loads query every shard.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// Logger receives debug output for loads and commits. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RelationshipTable: "tombstone_relationships",
		NumShards:         1,
		Logger:            zap.NewNop(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.RelationshipTable == "" {
		c.RelationshipTable = "tombstone_relationships"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > shard.Max {
		c.NumShards = shard.Max
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
