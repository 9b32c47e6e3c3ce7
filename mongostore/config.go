package mongostore

import (
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for the Store.
type Config struct {
	// Database is the database holding the collections named by the
	// registry's schemas. Default: "tombstone"
	Database string

	// Timeout bounds connecting and server selection in Connect.
	// Default: 10s
	Timeout time.Duration

	// Logger receives debug output for loads and commits. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Database: "tombstone",
		Timeout:  10 * time.Second,
		Logger:   zap.NewNop(),
	}
}

func (c *Config) validate() {
	if c.Database == "" {
		c.Database = "tombstone"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
