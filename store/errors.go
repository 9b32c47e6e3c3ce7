package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an entity doesn't exist or is soft-deleted.
	ErrNotFound = errors.New("tombstone: entity not found")

	// ErrUnknownType is returned when an entity type has no registered schema.
	ErrUnknownType = errors.New("tombstone: unknown entity type")

	// ErrOneToOneOnPrimaryKey is matched by ConfigurationError.
	ErrOneToOneOnPrimaryKey = errors.New("tombstone: one-to-one relation on primary key")

	// ErrConcurrentModification is returned when a row changed or vanished
	// between load and commit.
	ErrConcurrentModification = errors.New("tombstone: entity was modified concurrently")

	// ErrTransactionTooLarge is returned when a mutation set exceeds what the
	// backend can commit atomically.
	ErrTransactionTooLarge = errors.New("tombstone: mutation set exceeds transaction limit")

	// ErrSessionClosed is returned when a session is used after Commit or Close.
	ErrSessionClosed = errors.New("tombstone: session is closed")
)

// ConfigurationError is returned when an entity cannot be soft-deleted safely
// because of its schema: a unique foreign key covering its own primary key.
type ConfigurationError struct {
	EntityType    string
	RelatedType   string
	KeyProperties []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"tombstone: entity %s has a one-to-one relationship with %s via the primary key (%s); "+
			"soft delete would block re-creating a row with the same foreign key",
		e.EntityType, e.RelatedType, strings.Join(e.KeyProperties, ", "),
	)
}

// Is matches ErrOneToOneOnPrimaryKey.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrOneToOneOnPrimaryKey
}

// LoadError is returned when a relation could not be loaded. It aborts the
// whole cascade pass.
type LoadError struct {
	Relation string
	Source   string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("tombstone: load %s of %s: %v", e.Relation, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CommitError is returned when the unit of work failed to persist a mutation
// set. Nothing from the set is persisted.
type CommitError struct {
	Staged int
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("tombstone: commit %d staged entities: %v", e.Staged, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
