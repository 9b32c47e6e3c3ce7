package store

import "context"

// RelationLoader fetches the value of an unloaded navigation.
type RelationLoader interface {
	// Load returns the entities related to source through rel whose
	// deletion timestamp is unset. For One relations at most one entity is
	// returned. An empty result means nothing is related.
	Load(ctx context.Context, source Entity, rel Relation) ([]Entity, error)
}

// Session is the persistence context of one logical operation. Loads observe
// the session's snapshot and Commit persists a MutationSet atomically.
// Sessions are not safe for concurrent use.
type Session interface {
	RelationLoader

	// Commit persists all staged writes or none of them. The session is
	// finished afterwards regardless of the outcome.
	Commit(ctx context.Context, set *MutationSet) error

	// Close releases the session, discarding anything not committed.
	// Close after Commit is a no-op.
	Close(ctx context.Context) error
}

// Backend is a persistence engine.
type Backend interface {
	// Begin starts a new Session.
	Begin(ctx context.Context) (Session, error)

	// Find returns the rows matching q.
	Find(ctx context.Context, q Query) ([]Entity, error)

	// Count returns the number of rows matching q, ignoring paging.
	Count(ctx context.Context, q Query) (int64, error)
}
