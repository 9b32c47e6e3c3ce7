package store

import "sort"

// DeleteBehavior is the per-relation policy applied when the principal is deleted.
type DeleteBehavior int

const (
	// NoAction leaves dependents untouched.
	NoAction DeleteBehavior = iota
	// Restrict leaves dependents untouched; backends may reject the delete.
	Restrict
	// SetNull clears the dependent's foreign key (handled by the backend schema).
	SetNull
	// Cascade soft-deletes dependents along with the principal.
	Cascade
	// ClientCascade soft-deletes dependents that the client tracks or can load.
	ClientCascade
)

// String returns the lower-case behavior name.
func (b DeleteBehavior) String() string {
	switch b {
	case Restrict:
		return "restrict"
	case SetNull:
		return "set-null"
	case Cascade:
		return "cascade"
	case ClientCascade:
		return "client-cascade"
	default:
		return "no-action"
	}
}

// Cascades reports whether the behavior propagates soft deletes.
func (b DeleteBehavior) Cascades() bool {
	return b == Cascade || b == ClientCascade
}

// Cardinality tells whether a navigation holds one entity or a collection.
type Cardinality int

const (
	// One is a reference navigation holding at most one entity.
	One Cardinality = iota
	// Many is a collection navigation.
	Many
)

// Schema describes how a backend persists an entity type.
type Schema struct {
	// Type is the entity type name returned by Entity.EntityType.
	Type string

	// Table is the table, collection or DynamoDB table name.
	Table string

	// PrimaryKey lists the primary key properties. Default: ["id"].
	PrimaryKey []string

	// New returns an empty instance for decoding rows.
	New func() Entity
}

// KeyColumn returns the first primary key property.
func (s Schema) KeyColumn() string {
	if len(s.PrimaryKey) == 0 {
		return "id"
	}
	return s.PrimaryKey[0]
}

// Relation describes one navigation from a source entity type to a target type.
type Relation struct {
	// Name is the navigation name (e.g., "lines").
	Name string

	// SourceType is the entity type owning the navigation.
	SourceType string

	// TargetType is the entity type the navigation points to.
	TargetType string

	// Cardinality is One for references and Many for collections.
	Cardinality Cardinality

	// OnDelete is the delete behavior of the underlying foreign key.
	OnDelete DeleteBehavior

	// OnDependent is true when the source holds the foreign key
	// (e.g., line -> order). Such navigations never cascade.
	OnDependent bool

	// TargetOwned marks embedded targets without an independent lifecycle.
	TargetOwned bool

	// ForeignKey is the target attribute holding the source key
	// (e.g., "order_id"). Backends use it to load the navigation.
	ForeignKey string

	// Navigation reads and writes the in-memory value. Nil means the
	// relation has no accessible property.
	Navigation Navigation
}

// Participates reports whether soft deletes cascade through the relation.
func (r Relation) Participates() bool {
	return !r.OnDependent && r.OnDelete.Cascades()
}

// ForeignKey describes a foreign key declared on a dependent entity type.
type ForeignKey struct {
	// PrincipalType is the referenced entity type.
	PrincipalType string

	// Properties are the dependent's foreign key properties.
	Properties []string

	// PrincipalKey are the referenced principal properties.
	PrincipalKey []string

	// Unique is true for one-to-one foreign keys.
	Unique bool
}

// Registry holds entity schemas, relations and foreign keys. It is built once
// at startup and read concurrently afterwards.
type Registry struct {
	schemas     map[string]Schema
	relations   []Relation
	bySource    map[string][]Relation
	foreignKeys map[string][]ForeignKey
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:     make(map[string]Schema),
		relations:   []Relation{},
		bySource:    make(map[string][]Relation),
		foreignKeys: make(map[string][]ForeignKey),
	}
}

// Define registers an entity schema.
func (r *Registry) Define(s Schema) {
	if len(s.PrimaryKey) == 0 {
		s.PrimaryKey = []string{"id"}
	}
	r.schemas[s.Type] = s
}

// Relate adds a relation to the registry.
// This should be called during startup for each navigation.
func (r *Registry) Relate(rel Relation) {
	r.relations = append(r.relations, rel)
	r.bySource[rel.SourceType] = append(r.bySource[rel.SourceType], rel)
}

// DeclareForeignKey adds a foreign key declared on the dependent type.
func (r *Registry) DeclareForeignKey(dependentType string, fk ForeignKey) {
	r.foreignKeys[dependentType] = append(r.foreignKeys[dependentType], fk)
}

// SchemaOf returns the schema of an entity type.
func (r *Registry) SchemaOf(entityType string) (Schema, bool) {
	s, ok := r.schemas[entityType]
	return s, ok
}

// RelationsOf returns the relations whose source is the given type,
// in registration order.
func (r *Registry) RelationsOf(entityType string) []Relation {
	return r.bySource[entityType]
}

// RelationsTo returns all relations targeting the given type.
func (r *Registry) RelationsTo(entityType string) []Relation {
	var rels []Relation
	for _, rel := range r.relations {
		if rel.TargetType == entityType {
			rels = append(rels, rel)
		}
	}
	return rels
}

// ForeignKeysOf returns the foreign keys declared on the given type.
func (r *Registry) ForeignKeysOf(entityType string) []ForeignKey {
	return r.foreignKeys[entityType]
}

// PrimaryKeyOf returns the primary key properties of the given type.
// Unknown types have no primary key.
func (r *Registry) PrimaryKeyOf(entityType string) []string {
	return r.schemas[entityType].PrimaryKey
}

// AllRelations returns all registered relations.
func (r *Registry) AllRelations() []Relation {
	return r.relations
}

// Types returns the defined entity type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
