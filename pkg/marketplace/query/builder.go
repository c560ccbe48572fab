// Package query builds parameterised, paginated SELECT statements with a
// matching COUNT over the same predicate.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slices"
)

// ErrInvalidIdentifier is returned for table or column names that are not
// plain SQL identifiers.
var ErrInvalidIdentifier = errors.New("invalid identifier")

const (
	DefaultOrderBy   = "created_at"
	DefaultDirection = "DESC"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Condition is a trusted equality predicate added by the server, such as
// is_active = true for public listings.
type Condition struct {
	Column string
	Value  any
}

// Request describes one list query.
type Request struct {
	Table   string
	Columns []string
	// Allowed lists the columns client filters may reference. Filter keys
	// outside it are dropped.
	Allowed    []string
	Filters    map[string]any
	Conditions []Condition

	Search        string
	SearchColumns []string

	// Sortable restricts OrderBy. An unknown OrderBy falls back to created_at.
	Sortable   []string
	OrderBy    string
	Direction  string
	TieBreaker string

	// Limit <= 0 returns every row.
	Limit  int
	Offset int
}

// Statement holds the page and count queries built from one Request.
type Statement struct {
	PageSQL   string
	PageArgs  []any
	CountSQL  string
	CountArgs []any
	// Dropped lists filter keys that were ignored.
	Dropped []string
}

// Build returns the page and count statements for req. Both are built from
// the same predicate, so the count always matches the filtered set.
func Build(req Request) (*Statement, error) {
	table, err := quoteTable(req.Table)
	if err != nil {
		return nil, err
	}

	cols := "*"
	if len(req.Columns) > 0 {
		quoted := make([]string, 0, len(req.Columns))
		for _, c := range req.Columns {
			q, err := quote(c)
			if err != nil {
				return nil, err
			}
			quoted = append(quoted, q)
		}
		cols = strings.Join(quoted, ", ")
	}

	filters, dropped := Sanitize(req.Filters, req.Allowed)

	pageBinder := &binder{}
	pageWhere, err := where(req, filters, pageBinder)
	if err != nil {
		return nil, err
	}
	countBinder := &binder{}
	countWhere, err := where(req, filters, countBinder)
	if err != nil {
		return nil, err
	}

	orderBy, err := order(req)
	if err != nil {
		return nil, err
	}

	var page strings.Builder
	fmt.Fprintf(&page, "SELECT %s FROM %s%s ORDER BY %s", cols, table, pageWhere, orderBy)
	if req.Limit > 0 {
		offset := req.Offset
		if offset < 0 {
			offset = 0
		}
		fmt.Fprintf(&page, " LIMIT %s OFFSET %s", pageBinder.bind(req.Limit), pageBinder.bind(offset))
	} else if req.Offset > 0 {
		fmt.Fprintf(&page, " OFFSET %s", pageBinder.bind(req.Offset))
	}

	return &Statement{
		PageSQL:   page.String(),
		PageArgs:  pageBinder.args,
		CountSQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, countWhere),
		CountArgs: countBinder.args,
		Dropped:   dropped,
	}, nil
}

// Sanitize keeps the filters whose key is in allowed and returns the
// sorted list of dropped keys.
func Sanitize(filters map[string]any, allowed []string) (map[string]any, []string) {
	kept := make(map[string]any, len(filters))
	var dropped []string
	for key, value := range filters {
		if slices.Contains(allowed, key) && identPattern.MatchString(key) {
			kept[key] = value
			continue
		}
		dropped = append(dropped, key)
	}
	slices.Sort(dropped)
	return kept, dropped
}

// EscapeLike escapes the LIKE wildcards in term so it matches literally.
func EscapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// Paginate normalises page and limit and returns the row offset. Pages
// start at 1. A limit <= 0 means no limit and a zero offset.
func Paginate(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return page, 0, 0
	}
	return page, limit, (page - 1) * limit
}

type binder struct {
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func where(req Request, filters map[string]any, b *binder) (string, error) {
	var preds []string

	for _, c := range req.Conditions {
		p, err := equality(c.Column, c.Value, b)
		if err != nil {
			return "", err
		}
		preds = append(preds, p)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		p, err := equality(k, filters[k], b)
		if err != nil {
			return "", err
		}
		preds = append(preds, p)
	}

	term := strings.TrimSpace(req.Search)
	if term != "" && len(req.SearchColumns) > 0 {
		param := b.bind("%" + EscapeLike(term) + "%")
		ors := make([]string, 0, len(req.SearchColumns))
		for _, c := range req.SearchColumns {
			q, err := quote(c)
			if err != nil {
				return "", err
			}
			ors = append(ors, fmt.Sprintf("%s ILIKE %s", q, param))
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(preds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(preds, " AND "), nil
}

func equality(column string, value any, b *binder) (string, error) {
	q, err := quote(column)
	if err != nil {
		return "", err
	}
	switch v := value.(type) {
	case nil:
		return q + " IS NULL", nil
	case []string:
		return fmt.Sprintf("%s = ANY(%s)", q, b.bind(v)), nil
	case []any:
		return fmt.Sprintf("%s = ANY(%s)", q, b.bind(v)), nil
	}
	return fmt.Sprintf("%s = %s", q, b.bind(value)), nil
}

func order(req Request) (string, error) {
	column := req.OrderBy
	if column == "" || (len(req.Sortable) > 0 && !slices.Contains(req.Sortable, column)) {
		column = DefaultOrderBy
	}
	direction := DefaultDirection
	if strings.EqualFold(req.Direction, "asc") {
		direction = "ASC"
	}

	q, err := quote(column)
	if err != nil {
		return "", err
	}
	clause := q + " " + direction
	if req.TieBreaker != "" && req.TieBreaker != column {
		tb, err := quote(req.TieBreaker)
		if err != nil {
			return "", err
		}
		clause += ", " + tb + " " + direction
	}
	return clause, nil
}

func quote(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

func quoteTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
