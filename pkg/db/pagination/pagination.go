package pagination

import (
	"net/url"
	"strconv"
)

// Page is a 1-based page request.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps page to >= 1 and per_page to [1, maxPerPage], using
// defaultPerPage when per_page was not supplied.
func (p Page) Normalize(defaultPerPage, maxPerPage int) Page {
	if defaultPerPage < 1 {
		defaultPerPage = 1
	}
	if maxPerPage < defaultPerPage {
		maxPerPage = defaultPerPage
	}

	page := p.Page
	if page < 1 {
		page = 1
	}

	perPage := p.PerPage
	switch {
	case perPage == 0:
		perPage = defaultPerPage
	case perPage < 1:
		perPage = 1
	case perPage > maxPerPage:
		perPage = maxPerPage
	}

	return Page{Page: page, PerPage: perPage}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p Page) Limit() int {
	return p.PerPage
}

// Meta describes the page that was served.
type Meta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// Links holds absolute page URLs; Prev and Next are nil at the edges.
type Links struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

func BuildMeta(page Page, total int64) Meta {
	return Meta{
		CurrentPage: page.Page,
		PerPage:     page.PerPage,
		Total:       total,
		LastPage:    LastPage(total, page.PerPage),
	}
}

// LastPage is ceil(total/perPage), never below 1.
func LastPage(total int64, perPage int) int {
	if perPage < 1 || total <= 0 {
		return 1
	}
	last := int((total + int64(perPage) - 1) / int64(perPage))
	if last < 1 {
		return 1
	}
	return last
}

// BuildLinks renders page links against base, preserving its other query parameters.
func BuildLinks(base *url.URL, meta Meta) Links {
	links := Links{
		First: pageURL(base, 1, meta.PerPage),
		Last:  pageURL(base, meta.LastPage, meta.PerPage),
	}
	if meta.CurrentPage > 1 {
		prev := pageURL(base, min(meta.CurrentPage-1, meta.LastPage), meta.PerPage)
		links.Prev = &prev
	}
	if meta.CurrentPage < meta.LastPage {
		next := pageURL(base, meta.CurrentPage+1, meta.PerPage)
		links.Next = &next
	}
	return links
}

func pageURL(base *url.URL, page, perPage int) string {
	var u url.URL
	if base != nil {
		u = *base
	}
	query := u.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = query.Encode()
	return u.String()
}
