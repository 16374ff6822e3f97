package repository

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/timmy/itinerary-ingest/internal/domain"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
	OpIn Operator = "in"
	OpLt Operator = "lt"
	OpGt Operator = "gt"
)

// Filter restricts one field. In takes all Values; other operators use Values[0].
type Filter struct {
	Field  string
	Op     Operator
	Values []string
}

// Query is a parsed collection query.
type Query struct {
	Filters []Filter
	Sort    string // field name, "-" prefix for descending
	Limit   int
	Page    int
}

var reservedParams = map[string]bool{"sort": true, "limit": true, "page": true}

// ParseQuery builds a Query from URL parameters of the form
// field=value, field__in=a,b, field__ne=x, field__lt=x, field__gt=x, sort=-field, limit=n, page=n.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{Sort: values.Get("sort"), Page: 1, Limit: defaultLimit}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("%w: limit %q", domain.ErrInvalidInput, raw)
		}
		q.Limit = n
	}
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Query{}, fmt.Errorf("%w: page %q", domain.ErrInvalidInput, raw)
		}
		q.Page = n
	}

	for key, vals := range values {
		if reservedParams[key] || len(vals) == 0 {
			continue
		}
		field, op := key, OpEq
		if idx := strings.LastIndex(key, "__"); idx > 0 {
			field = key[:idx]
			switch Operator(key[idx+2:]) {
			case OpIn:
				op = OpIn
			case OpNe:
				op = OpNe
			case OpLt:
				op = OpLt
			case OpGt:
				op = OpGt
			default:
				return Query{}, fmt.Errorf("%w: unknown operator in %q", domain.ErrInvalidInput, key)
			}
		}
		f := Filter{Field: field, Op: op, Values: []string{vals[0]}}
		if op == OpIn {
			f.Values = splitList(vals[0])
		}
		q.Filters = append(q.Filters, f)
	}

	return q, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
