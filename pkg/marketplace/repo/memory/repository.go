package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// Repository implements marketplace.Repository using in-memory storage.
// It mirrors the filter, search and ordering rules of the SQL repository.
type Repository struct {
	mu     sync.RWMutex
	tables map[string]map[uuid.UUID]*row
	seq    int64
}

type row struct {
	rec *marketplace.Record
	seq int64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{tables: make(map[string]map[uuid.UUID]*row)}
}

var _ marketplace.Repository = (*Repository)(nil)

func (r *Repository) table(name string) map[uuid.UUID]*row {
	t, ok := r.tables[name]
	if !ok {
		t = make(map[uuid.UUID]*row)
		r.tables[name] = t
	}
	return t
}

func (r *Repository) Insert(ctx context.Context, schema *marketplace.Schema, rec *marketplace.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table(schema.Table)
	if _, exists := t[rec.ID]; exists {
		return fmt.Errorf("%w: %s", marketplace.ErrDuplicate, rec.ID)
	}
	r.seq++
	t[rec.ID] = &row{rec: rec.Clone(), seq: r.seq}
	return nil
}

func (r *Repository) Get(ctx context.Context, schema *marketplace.Schema, id uuid.UUID) (*marketplace.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tables[schema.Table][id]
	if !ok {
		return nil, marketplace.ErrNotFound
	}
	return e.rec.Clone(), nil
}

func (r *Repository) Update(ctx context.Context, schema *marketplace.Schema, rec *marketplace.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tables[schema.Table][rec.ID]
	if !ok {
		return marketplace.ErrNotFound
	}
	e.rec = rec.Clone()
	return nil
}

func (r *Repository) Delete(ctx context.Context, schema *marketplace.Schema, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.tables[schema.Table]
	if _, ok := t[id]; !ok {
		return marketplace.ErrNotFound
	}
	delete(t, id)
	return nil
}

func (r *Repository) List(ctx context.Context, schema *marketplace.Schema, q marketplace.ListQuery) ([]*marketplace.Record, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := schema.FilterColumns()
	searchCols := schema.SearchColumns()
	term := strings.ToLower(strings.TrimSpace(q.Search))

	var matched []*row
	for _, e := range r.tables[schema.Table] {
		if !matches(e.rec, q.Filters, allowed) {
			continue
		}
		if term != "" && len(searchCols) > 0 && !contains(e.rec, searchCols, term) {
			continue
		}
		matched = append(matched, e)
	}

	orderBy := q.OrderBy
	if orderBy == "" || !slices.Contains(schema.Columns(), orderBy) {
		orderBy = marketplace.ColumnCreatedAt
	}
	desc := !strings.EqualFold(q.Direction, "asc")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := value(matched[i].rec, orderBy), value(matched[j].rec, orderBy)
		if c := compare(a, b); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		if desc {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].seq < matched[j].seq
	})

	total := int64(len(matched))
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	items := make([]*marketplace.Record, 0, len(matched))
	for _, e := range matched {
		items = append(items, e.rec.Clone())
	}
	return items, total, nil
}

func value(rec *marketplace.Record, column string) any {
	switch column {
	case marketplace.ColumnID:
		return rec.ID.String()
	case marketplace.ColumnStatus:
		return string(rec.Status)
	case marketplace.ColumnIsActive:
		return rec.IsActive
	case marketplace.ColumnCreatedAt:
		return rec.CreatedAt
	case marketplace.ColumnUpdatedAt:
		return rec.UpdatedAt
	}
	return rec.Attributes[column]
}

func matches(rec *marketplace.Record, filters map[string]any, allowed []string) bool {
	for key, want := range filters {
		if !slices.Contains(allowed, key) {
			continue
		}
		got := value(rec, key)
		switch w := want.(type) {
		case nil:
			if got != nil {
				return false
			}
		case []string:
			found := false
			for _, s := range w {
				if compare(got, s) == 0 && got != nil {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if got == nil || compare(got, want) != 0 {
				return false
			}
		}
	}
	return true
}

func contains(rec *marketplace.Record, columns []string, term string) bool {
	for _, c := range columns {
		if s, ok := rec.Attributes[c].(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// compare orders nil first, then compares like-typed values.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
