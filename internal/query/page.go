package query

// Meta describes one page of a paginated listing.
type Meta struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// NewMeta computes page metadata. LastPage is at least 1 even when empty.
func NewMeta(page, perPage int, total int64) Meta {
	last := 1
	if perPage > 0 && total > 0 {
		last = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Meta{
		CurrentPage: page,
		LastPage:    last,
		PerPage:     perPage,
		Total:       total,
	}
}

// Page is a slice of results with its metadata.
type Page[T any] struct {
	Data []T   `json:"data"`
	Meta Meta `json:"meta"`
}

// NewPage wraps items; a nil slice is returned as an empty list.
func NewPage[T any](items []T, page, perPage int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Data: items, Meta: NewMeta(page, perPage, total)}
}
