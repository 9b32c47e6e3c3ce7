package store

import (
	"fmt"
	"time"
)

// Entity is the base interface for all storable types.
type Entity interface {
	// EntityType returns the registered entity type name (e.g., "order").
	EntityType() string

	// Key returns the primary key value.
	Key() any

	// Stamps returns the entity's lifecycle timestamps for in-place edits.
	Stamps() *Timestamps
}

// Timestamps holds the store-managed lifecycle fields.
type Timestamps struct {
	// CreatedAt is set by Add before the first commit.
	CreatedAt time.Time `db:"created_at" dynamodbav:"created_at" bson:"created_at"`

	// UpdatedAt is set by Update.
	UpdatedAt *time.Time `db:"updated_at" dynamodbav:"updated_at,omitempty" bson:"updated_at,omitempty"`

	// DeletedAt is set when the entity is soft-deleted and never cleared.
	DeletedAt *time.Time `db:"deleted_at" dynamodbav:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// Stamps implements Entity for types embedding Timestamps.
func (t *Timestamps) Stamps() *Timestamps { return t }

// IsDeleted reports whether the deletion timestamp is set.
func (t *Timestamps) IsDeleted() bool { return t.DeletedAt != nil }

// Base is embedded by entities with a single primary key column named "id".
type Base[K comparable] struct {
	ID K `db:"id" dynamodbav:"id" bson:"_id"`

	Timestamps `bson:",inline"`
}

// Key returns the ID.
func (b *Base[K]) Key() any { return b.ID }

// Ref returns the type-qualified reference of an entity (e.g., "order#42").
// Refs identify entities across a cascade pass regardless of which in-memory
// copy was reached.
func Ref(e Entity) string {
	return fmt.Sprintf("%s#%v", e.EntityType(), e.Key())
}

// IsDeleted reports whether e has been soft-deleted.
func IsDeleted(e Entity) bool {
	return e.Stamps().IsDeleted()
}

// MarkDeleted sets the deletion timestamp. It is the default root and
// cascade edit.
func MarkDeleted(e Entity, now time.Time) {
	e.Stamps().DeletedAt = &now
}
