package httputil

import (
	"net/http"
	"strconv"
)

// Pagination is a 1-based page request
type Pagination struct {
	Page    int
	PerPage int
}

// Offset returns the row offset of the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ParsePagination reads page and per_page from the query string. Missing or
// malformed values fall back to page 1 and defaultPerPage; per_page is capped
// at maxPerPage.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) Pagination {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}

	return Pagination{Page: page, PerPage: perPage}
}
