// Package pagination implements page-number pagination with the
// {count, next, previous, results} envelope.
package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

const (
	PageParam       = "page"
	PageSizeParam   = "page_size"
	DefaultPageSize = 100
	MaxPageSize     = 500
)

var ErrInvalidPage = errors.New("Invalid page.")

type Params struct {
	Page     int
	PageSize int
}

func (p Params) Limit() int  { return p.PageSize }
func (p Params) Offset() int { return (p.Page - 1) * p.PageSize }

// FromRequest reads page and page_size. A malformed page is an error; a
// malformed page_size falls back to the default and large values are capped.
func FromRequest(r *http.Request) (Params, error) {
	q := r.URL.Query()
	p := Params{Page: 1, PageSize: DefaultPageSize}

	if raw := q.Get(PageParam); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, ErrInvalidPage
		}
		p.Page = n
	}
	if raw := q.Get(PageSizeParam); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.PageSize = min(n, MaxPageSize)
		}
	}
	return p, nil
}

type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// New builds the envelope for one page of results out of count. Requesting a
// page past the end is an error, except for the first page of an empty set.
func New[T any](r *http.Request, p Params, count int, results []T) (Page[T], error) {
	if results == nil {
		results = []T{}
	}
	pages := 1
	if count > 0 {
		pages = (count + p.PageSize - 1) / p.PageSize
	}
	if p.Page > pages {
		return Page[T]{}, ErrInvalidPage
	}

	page := Page[T]{Count: count, Results: results}
	if p.Page < pages {
		next := pageURL(r, p.Page+1)
		page.Next = &next
	}
	if p.Page > 1 {
		prev := pageURL(r, p.Page-1)
		page.Previous = &prev
	}
	return page, nil
}

func pageURL(r *http.Request, page int) string {
	u := url.URL{
		Scheme: scheme(r),
		Host:   r.Host,
		Path:   r.URL.Path,
	}
	q := r.URL.Query()
	if page == 1 {
		q.Del(PageParam)
	} else {
		q.Set(PageParam, strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
