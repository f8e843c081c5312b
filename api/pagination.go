package api

import (
	"net/http"
	"strconv"
)

const maxPage = 1000000

// PaginationParams holds pagination query parameters
type PaginationParams struct {
	Page     int
	PageSize int
}

// ParsePaginationParams reads page and page_size. Missing or invalid values
// fall back to 1 and defaultSize; page_size is capped at maxSize.
func ParsePaginationParams(r *http.Request, defaultSize, maxSize int) PaginationParams {
	p := PaginationParams{Page: 1, PageSize: defaultSize}
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
		if p.Page > maxPage {
			p.Page = maxPage
		}
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
		p.PageSize = v
		if p.PageSize > maxSize {
			p.PageSize = maxSize
		}
	}
	return p
}

// TotalPages returns the page count for total items, at least 1.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
