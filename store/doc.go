// Package store provides a generic data access layer with relationship-aware
// soft deletes.
//
// Tombstone is designed for applications that keep deleted rows around as
// tombstones (a deletion timestamp) while still expecting a delete to take
// dependent rows with it, the way a database ON DELETE CASCADE would.
//
// # Key Features
//
//   - Soft delete that cascades through relations configured as Cascade or
//     ClientCascade, loading unloaded navigations on demand
//   - Idempotent, cycle-safe traversal: every entity is marked at most once
//   - Rejection of one-to-one relations on the primary key, which soft
//     deletes cannot undo safely
//   - One atomic commit per operation through a backend Session
//   - Typed repositories with pagination that hide soft-deleted rows
//
// # Entity Interface
//
// All entities must implement the [Entity] interface:
//
//	type Entity interface {
//	    EntityType() string
//	    Key() any
//	    Stamps() *Timestamps
//	}
//
// Embedding [Base] provides Key and Stamps:
//
//	type Order struct {
//	    store.Base[string]
//	    CustomerID string       `db:"customer_id"`
//	    Lines      []*OrderLine `db:"-" dynamodbav:"-" bson:"-"`
//	}
//
// # Metadata
//
// Entity types, relations and foreign keys are declared once in a [Registry]:
//
//	reg := store.NewRegistry()
//	reg.Define(store.Schema{Type: "order", Table: "orders", New: func() store.Entity { return &Order{} }})
//	reg.Relate(store.Relation{
//	    Name:        "lines",
//	    SourceType:  "order",
//	    TargetType:  "order_line",
//	    Cardinality: store.Many,
//	    OnDelete:    store.Cascade,
//	    ForeignKey:  "order_id",
//	    Navigation:  store.Collection(func(o *Order) *[]*OrderLine { return &o.Lines }),
//	})
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ConfigurationError] - the entity has a one-to-one relation on its primary key
//   - [LoadError] - a navigation could not be loaded; nothing was committed
//   - [CommitError] - the backend failed to persist the mutation set
//   - [ErrNotFound] - entity doesn't exist or is deleted
//   - [ErrTransactionTooLarge] - the backend cannot commit the set atomically
package store
