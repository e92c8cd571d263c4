// Package search implements free-text search with per-request field
// selection and whitelisted ordering for list endpoints.
package search

import (
	"errors"
	"fmt"
	"strings"
)

// PatternParam selects a named field set for one request.
const (
	Param        = "search"
	PatternParam = "search_pattern"
)

var ErrUnsupportedPattern = errors.New("unsupported search pattern")

// UnsupportedPatternError names the pattern the endpoint does not declare.
type UnsupportedPatternError struct {
	Pattern string
}

func (e *UnsupportedPatternError) Error() string {
	return fmt.Sprintf("Search pattern %s is not supported", e.Pattern)
}

func (e *UnsupportedPatternError) Unwrap() error {
	return ErrUnsupportedPattern
}

// Predicate renders a boolean SQL expression comparing one field with the
// placeholder p using ILIKE.
type Predicate func(p string) string

// ILike matches a text column.
func ILike(column string) Predicate {
	return func(p string) string {
		return fmt.Sprintf("%s ILIKE %s", column, p)
	}
}

// ILikeText matches a non-text column through its text form.
func ILikeText(column string) Predicate {
	return func(p string) string {
		return fmt.Sprintf("CAST(%s AS TEXT) ILIKE %s", column, p)
	}
}

// Exists matches when the correlated subquery finds a row. The subquery
// must contain a single %s where the placeholder goes.
func Exists(subquery string) Predicate {
	return func(p string) string {
		return "EXISTS (" + fmt.Sprintf(subquery, p) + ")"
	}
}

// Filter declares the searchable fields of one endpoint. Default is used
// when no pattern is requested. An endpoint without Patterns ignores the
// pattern parameter.
type Filter struct {
	Fields   map[string]Predicate
	Default  []string
	Patterns map[string][]string
}

// Query is a parsed search request.
type Query struct {
	Terms  []string
	Fields []string

	preds []Predicate
}

// Parse resolves the field set for pattern and splits text into terms. It
// returns nil when there is nothing to search for.
func (f Filter) Parse(text, pattern string) (*Query, error) {
	names, err := f.resolve(pattern)
	if err != nil {
		return nil, err
	}
	terms := Terms(text)
	if len(terms) == 0 || len(names) == 0 {
		return nil, nil
	}
	q := &Query{Terms: terms, Fields: names}
	for _, name := range names {
		pred, ok := f.Fields[name]
		if !ok {
			return nil, fmt.Errorf("search field %q is not declared", name)
		}
		q.preds = append(q.preds, pred)
	}
	return q, nil
}

func (f Filter) resolve(pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || f.Patterns == nil {
		return f.Default, nil
	}
	names, ok := f.Patterns[pattern]
	if !ok {
		return nil, &UnsupportedPatternError{Pattern: pattern}
	}
	return names, nil
}

// SQL renders the query as "(f1 OR f2) AND (f1 OR f2)", one group per
// term, numbering placeholders from argStart. Each term binds one argument.
func (q *Query) SQL(argStart int) (string, []any) {
	if q == nil {
		return "", nil
	}
	groups := make([]string, 0, len(q.Terms))
	args := make([]any, 0, len(q.Terms))
	for i, term := range q.Terms {
		p := fmt.Sprintf("$%d", argStart+i)
		ors := make([]string, 0, len(q.preds))
		for _, pred := range q.preds {
			ors = append(ors, pred(p))
		}
		groups = append(groups, "("+strings.Join(ors, " OR ")+")")
		args = append(args, "%"+EscapeLike(term)+"%")
	}
	return strings.Join(groups, " AND "), args
}

// Terms splits a search string on whitespace and commas.
func Terms(text string) []string {
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// EscapeLike escapes LIKE wildcards so a term matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
