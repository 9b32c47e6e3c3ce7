package store

// MutationKind tells the unit of work how to persist a staged entity.
type MutationKind int

const (
	// Insert adds a new row.
	Insert MutationKind = iota
	// Update rewrites an existing row in place. Soft deletes are updates.
	Update
	// Remove physically deletes a row.
	Remove
)

func (k MutationKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	default:
		return "remove"
	}
}

// Mutation is one staged write.
type Mutation struct {
	Kind   MutationKind
	Entity Entity
}

// MutationSet is the ordered batch of writes committed atomically by a
// Session. Each entity is staged at most once; re-staging keeps the first
// position and the most recent kind.
type MutationSet struct {
	mutations []Mutation
	index     map[string]int

	// marked are entities whose deletion timestamp was set while staging.
	marked []Entity
}

// NewMutationSet creates an empty MutationSet.
func NewMutationSet() *MutationSet {
	return &MutationSet{index: make(map[string]int)}
}

// Insert stages e as a new row.
func (m *MutationSet) Insert(e Entity) { m.stage(Insert, e) }

// Update stages e as an in-place update.
func (m *MutationSet) Update(e Entity) { m.stage(Update, e) }

// Remove stages e for physical deletion.
func (m *MutationSet) Remove(e Entity) { m.stage(Remove, e) }

func (m *MutationSet) stage(kind MutationKind, e Entity) {
	ref := Ref(e)
	if i, ok := m.index[ref]; ok {
		// An insert followed by an update is still an insert.
		if m.mutations[i].Kind == Insert && kind == Update {
			kind = Insert
		}
		m.mutations[i] = Mutation{Kind: kind, Entity: e}
		return
	}
	m.index[ref] = len(m.mutations)
	m.mutations = append(m.mutations, Mutation{Kind: kind, Entity: e})
}

// stageDeleted stages an entity the engine just marked as deleted.
func (m *MutationSet) stageDeleted(e Entity) {
	m.marked = append(m.marked, e)
	m.stage(Update, e)
}

// Discard empties the set and clears the deletion timestamps set while
// staging it, so the caller's entities can be deleted again by a retry.
// Only marks made by the failed pass are reverted; entities that were
// already deleted before the pass are never touched. Call it when the set
// will not be committed.
func (m *MutationSet) Discard() {
	for _, e := range m.marked {
		e.Stamps().DeletedAt = nil
	}
	m.marked = nil
	m.mutations = nil
	m.index = make(map[string]int)
}

// adoptDeleted copies the deletion timestamp of the staged entity with the
// same Ref onto e, when e is a different, unmarked copy of it.
func (m *MutationSet) adoptDeleted(e Entity) {
	i, ok := m.index[Ref(e)]
	if !ok {
		return
	}
	staged := m.mutations[i].Entity
	if staged == e || !IsDeleted(staged) || IsDeleted(e) {
		return
	}
	deletedAt := *staged.Stamps().DeletedAt
	e.Stamps().DeletedAt = &deletedAt
	m.marked = append(m.marked, e)
}

// Contains reports whether an entity with the same Ref is staged.
func (m *MutationSet) Contains(e Entity) bool {
	_, ok := m.index[Ref(e)]
	return ok
}

// Mutations returns the staged writes in staging order.
func (m *MutationSet) Mutations() []Mutation {
	return m.mutations
}

// Entities returns the staged entities of the given kind in staging order.
func (m *MutationSet) Entities(kind MutationKind) []Entity {
	var out []Entity
	for _, mu := range m.mutations {
		if mu.Kind == kind {
			out = append(out, mu.Entity)
		}
	}
	return out
}

// Len returns the number of staged writes.
func (m *MutationSet) Len() int {
	return len(m.mutations)
}
