package common

import (
	"net/http"
	"strconv"
)

// MaxPerPage caps the limit query parameter of list endpoints.
const MaxPerPage = 200

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Offset returns the number of rows to skip for the current page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// ParsePagination extracts page and limit query parameters, clamping the limit to MaxPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) Pagination {
	p := Pagination{Page: 1, PerPage: defaultPerPage}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.PerPage = v
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}
