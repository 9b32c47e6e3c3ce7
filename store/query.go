package store

import "strings"

// Query selects rows of one entity type.
type Query struct {
	// Type is the entity type to query.
	Type string

	// Where holds equality conditions keyed by column/attribute name.
	Where map[string]any

	// OrderBy is a column name, prefixed with "-" for descending order.
	OrderBy string

	// Limit is the maximum number of rows (0 = no limit).
	Limit int

	// Offset is the number of rows to skip.
	Offset int

	// WithDeleted includes soft-deleted rows.
	WithDeleted bool
}

// SortColumn splits OrderBy into the column and direction.
func (q Query) SortColumn() (column string, desc bool) {
	if strings.HasPrefix(q.OrderBy, "-") {
		return q.OrderBy[1:], true
	}
	return q.OrderBy, false
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Items       []T   `json:"items"`
	Index       int   `json:"index"`
	Size        int   `json:"size"`
	Count       int64 `json:"count"`
	Pages       int   `json:"pages"`
	HasPrevious bool  `json:"hasPrevious"`
	HasNext     bool  `json:"hasNext"`
}

// NewPage computes paging fields for a zero-based page index.
func NewPage[T any](items []T, index, size int, count int64) Page[T] {
	pages := 0
	if size > 0 {
		pages = int((count + int64(size) - 1) / int64(size))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:       items,
		Index:       index,
		Size:        size,
		Count:       count,
		Pages:       pages,
		HasPrevious: index > 0,
		HasNext:     index+1 < pages,
	}
}
