package store

// CheckSafeToSoftDelete rejects entities whose type has a unique foreign key
// whose referenced principal properties are all primary key properties of the
// entity itself. A soft-deleted row of such a type keeps occupying the key, so
// the principal can never get a new dependent.
func (r *Registry) CheckSafeToSoftDelete(e Entity) error {
	entityType := e.EntityType()
	primaryKey := r.PrimaryKeyOf(entityType)

	for _, fk := range r.ForeignKeysOf(entityType) {
		if !fk.Unique || !allIn(fk.PrincipalKey, primaryKey) {
			continue
		}
		return &ConfigurationError{
			EntityType:    entityType,
			RelatedType:   fk.PrincipalType,
			KeyProperties: append([]string(nil), primaryKey...),
		}
	}
	return nil
}

// allIn reports whether every name is in set. An empty names list is not
// considered covered.
func allIn(names, set []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		found := false
		for _, s := range set {
			if s == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
