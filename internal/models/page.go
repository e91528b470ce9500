package models

// Sort orders for listings.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// DefaultPageLimit is the page size used when none is given.
const DefaultPageLimit = 10

// PageRequest selects one page of a listing. Page is 1-indexed.
type PageRequest struct {
	Page  int
	Limit int
	Sort  string
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// WithDefaults fills a zero page, limit or sort with page 1, DefaultPageLimit and newest.
func (p PageRequest) WithDefaults() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Sort != SortOldest {
		p.Sort = SortNewest
	}
	return p
}

// Pagination describes the page returned with a listing.
type Pagination struct {
	TotalItems   int `json:"totalItems"`
	TotalPages   int `json:"totalPages"`
	CurrentPage  int `json:"currentPage"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// NewPagination computes totalPages = ceil(totalItems / limit).
func NewPagination(p PageRequest, totalItems int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (totalItems + p.Limit - 1) / p.Limit
	}
	return Pagination{
		TotalItems:   totalItems,
		TotalPages:   pages,
		CurrentPage:  p.Page,
		ItemsPerPage: p.Limit,
	}
}
