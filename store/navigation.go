package store

// Navigation reads and writes the in-memory value of a relation on a source
// entity. A nil slice or nil reference means "not loaded".
type Navigation interface {
	// Get returns the related entities and whether the navigation is loaded.
	Get(source Entity) (related []Entity, loaded bool)

	// Set stores loaded entities on the source.
	Set(source Entity, related []Entity)
}

type navigation struct {
	get func(Entity) ([]Entity, bool)
	set func(Entity, []Entity)
}

func (n navigation) Get(source Entity) ([]Entity, bool)  { return n.get(source) }
func (n navigation) Set(source Entity, related []Entity) { n.set(source, related) }

// Collection builds a Navigation over a slice field.
//
//	store.Collection(func(o *Order) *[]*OrderLine { return &o.Lines })
func Collection[S Entity, T any, PT interface {
	*T
	Entity
}](field func(S) *[]PT) Navigation {
	return navigation{
		get: func(e Entity) ([]Entity, bool) {
			s, ok := e.(S)
			if !ok {
				return nil, false
			}
			items := *field(s)
			if items == nil {
				return nil, false
			}
			related := make([]Entity, 0, len(items))
			for _, item := range items {
				if item != nil {
					related = append(related, item)
				}
			}
			return related, true
		},
		set: func(e Entity, related []Entity) {
			s, ok := e.(S)
			if !ok {
				return
			}
			items := make([]PT, 0, len(related))
			for _, r := range related {
				if item, ok := r.(PT); ok {
					items = append(items, item)
				}
			}
			*field(s) = items
		},
	}
}

// Reference builds a Navigation over a pointer field.
//
//	store.Reference(func(c *Customer) **Profile { return &c.Profile })
func Reference[S Entity, T any, PT interface {
	*T
	Entity
}](field func(S) *PT) Navigation {
	return navigation{
		get: func(e Entity) ([]Entity, bool) {
			s, ok := e.(S)
			if !ok {
				return nil, false
			}
			ref := *field(s)
			if ref == nil {
				return nil, false
			}
			return []Entity{ref}, true
		},
		set: func(e Entity, related []Entity) {
			s, ok := e.(S)
			if !ok || len(related) == 0 {
				return
			}
			if ref, ok := related[0].(PT); ok {
				*field(s) = ref
			}
		},
	}
}
