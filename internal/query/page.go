package query

// Page is one resolved page of a remote collection. A Page is replaced
// wholesale on every successful response and never mutated in place.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
}

// PageCount returns the number of pages TotalCount spans at pageSize.
// An empty collection still has one (empty) page.
func (p Page[T]) PageCount(pageSize int) int {
	if pageSize < 1 || p.TotalCount <= 0 {
		return 1
	}
	return (p.TotalCount + pageSize - 1) / pageSize
}

// Empty reports whether the collection holds no rows at all.
func (p Page[T]) Empty() bool {
	return p.TotalCount == 0
}
