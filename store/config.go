package store

import (
	"time"

	"go.uber.org/zap"
)

// EditFunc applies the deletion edit to an entity. now is the pass timestamp
// shared by every entity marked in the same pass.
type EditFunc func(e Entity, now time.Time)

// Config holds configuration for the Engine and Repository.
type Config struct {
	// Now returns the current time. Default: time.Now in UTC.
	Now func() time.Time

	// RootEdit marks the entity a delete was requested for.
	// Default: MarkDeleted.
	RootEdit EditFunc

	// CascadeEdit marks entities reached through cascading relations.
	// Default: MarkDeleted.
	CascadeEdit EditFunc

	// DefaultPageSize is used by List when ListOptions.Size is zero.
	// Default: 10
	DefaultPageSize int

	// Logger receives debug output of cascade passes. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Now:             func() time.Time { return time.Now().UTC() },
		RootEdit:        MarkDeleted,
		CascadeEdit:     MarkDeleted,
		DefaultPageSize: 10,
		Logger:          zap.NewNop(),
	}
}

// validate fills unset fields with defaults.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.Now == nil {
		c.Now = def.Now
	}
	if c.RootEdit == nil {
		c.RootEdit = def.RootEdit
	}
	if c.CascadeEdit == nil {
		c.CascadeEdit = def.CascadeEdit
	}
	if c.DefaultPageSize < 1 {
		c.DefaultPageSize = def.DefaultPageSize
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
}
