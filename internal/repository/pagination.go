package repository

// User listings are paged from 1. Page sizes above MaxPageSize are clamped
// here and rejected outright at the HTTP layer.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

// Normalized replaces out-of-range values with the defaults and caps the size.
func (r PageRequest) Normalized() PageRequest {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	switch {
	case r.PageSize < 1:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

func (r PageRequest) Offset() int { return (r.Page - 1) * r.PageSize }

type PageResult[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

func newPageResult[T any](req PageRequest, total int64, items []T) PageResult[T] {
	pages := 0
	if total > 0 && req.PageSize > 0 {
		size := int64(req.PageSize)
		pages = int((total + size - 1) / size)
	}
	return PageResult[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: pages,
	}
}
