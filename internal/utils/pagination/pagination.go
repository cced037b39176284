// Package pagination clamps page/page_size query values and reports page
// metadata for list endpoints.
package pagination

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is a one-based page request.
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize clamps page to at least 1 and pageSize to [1, MaxPageSize],
// substituting DefaultPageSize for a missing size.
func Normalize(page, pageSize int) Pagination {
	p := Pagination{Page: page, PageSize: pageSize}
	p.PageSize = p.Limit()
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// Offset is the number of rows to skip.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit is the bounded page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize < 1:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// TotalPages rounds total up to whole pages.
func (p Pagination) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	size := int64(p.Limit())
	return int((total + size - 1) / size)
}

// PageInfo is the page metadata embedded in list responses.
type PageInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Info describes the page p within total rows.
func (p Pagination) Info(total int64) PageInfo {
	return PageInfo{
		Page:       p.Page,
		PageSize:   p.Limit(),
		Total:      total,
		TotalPages: p.TotalPages(total),
	}
}
