package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/entities"
)

func newRecord(name, city string, created time.Time) *marketplace.Record {
	return &marketplace.Record{
		ID:        uuid.New(),
		Status:    marketplace.StatusApproved,
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
		Attributes: map[string]any{
			"name": name,
			"city": city,
		},
	}
}

func TestRepository_CRUD(t *testing.T) {
	repo := New()
	ctx := context.Background()
	schema := entities.Agencies

	rec := newRecord("Bright PR", "Berlin", time.Now())
	require.NoError(t, repo.Insert(ctx, schema, rec))
	assert.ErrorIs(t, repo.Insert(ctx, schema, rec), marketplace.ErrDuplicate)

	// stored copies are isolated from the caller
	rec.Attributes["name"] = "mutated"
	got, err := repo.Get(ctx, schema, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bright PR", got.Attributes["name"])

	got.Attributes["city"] = "Munich"
	require.NoError(t, repo.Update(ctx, schema, got))
	got, err = repo.Get(ctx, schema, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Munich", got.Attributes["city"])

	// tables are separate per schema
	_, err = repo.Get(ctx, entities.Radios, rec.ID)
	assert.ErrorIs(t, err, marketplace.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, schema, rec.ID))
	_, err = repo.Get(ctx, schema, rec.ID)
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, schema, rec.ID), marketplace.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, schema, rec), marketplace.ErrNotFound)
}

func TestRepository_ListPagination(t *testing.T) {
	repo := New()
	ctx := context.Background()
	schema := entities.Agencies

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, schema, newRecord(fmt.Sprintf("Agency %d", i), "Berlin", base.Add(time.Duration(i)*time.Hour))))
	}

	items, total, err := repo.List(ctx, schema, marketplace.ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 2)
	// newest first by default
	assert.Equal(t, "Agency 4", items[0].Attributes["name"])
	assert.Equal(t, "Agency 3", items[1].Attributes["name"])

	items, total, err = repo.List(ctx, schema, marketplace.ListQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Agency 0", items[0].Attributes["name"])

	items, total, err = repo.List(ctx, schema, marketplace.ListQuery{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, items)

	items, _, err = repo.List(ctx, schema, marketplace.ListQuery{OrderBy: "name", Direction: "asc"})
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, "Agency 0", items[0].Attributes["name"])

	// unknown sort columns fall back to created_at
	items, _, err = repo.List(ctx, schema, marketplace.ListQuery{OrderBy: "nope"})
	require.NoError(t, err)
	assert.Equal(t, "Agency 4", items[0].Attributes["name"])
}

func TestRepository_ListFiltersAndSearch(t *testing.T) {
	repo := New()
	ctx := context.Background()
	schema := entities.Agencies

	now := time.Now()
	berlin := newRecord("Bright PR", "Berlin", now)
	paris := newRecord("Lumiere Communications", "Paris", now.Add(time.Second))
	inactive := newRecord("Old Agency", "Berlin", now.Add(2*time.Second))
	inactive.IsActive = false
	pending := newRecord("New Agency", "Paris", now.Add(3*time.Second))
	pending.Status = marketplace.StatusPending
	for _, r := range []*marketplace.Record{berlin, paris, inactive, pending} {
		require.NoError(t, repo.Insert(ctx, schema, r))
	}

	tests := []struct {
		name    string
		filters map[string]any
		search  string
		want    []string
	}{
		{"city", map[string]any{"city": "Berlin"}, "", []string{"Old Agency", "Bright PR"}},
		{"active only", map[string]any{"is_active": true}, "", []string{"New Agency", "Lumiere Communications", "Bright PR"}},
		{"status", map[string]any{"status": "pending"}, "", []string{"New Agency"}},
		{"status list", map[string]any{"status": []string{"pending", "approved"}, "is_active": true}, "", []string{"New Agency", "Lumiere Communications", "Bright PR"}},
		{"unknown filter ignored", map[string]any{"phone": "123"}, "", []string{"New Agency", "Old Agency", "Lumiere Communications", "Bright PR"}},
		{"search is case insensitive", nil, "LUMIERE", []string{"Lumiere Communications"}},
		{"search and filter", map[string]any{"city": "Paris"}, "agency", []string{"New Agency"}},
		{"null filter", map[string]any{"country": nil}, "agency", []string{"New Agency", "Old Agency"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := repo.List(ctx, schema, marketplace.ListQuery{Filters: tt.filters, Search: tt.search})
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), total)
			names := make([]string, 0, len(items))
			for _, it := range items {
				names = append(names, it.String("name"))
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestCompare(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0, compare(nil, nil))
	assert.Equal(t, -1, compare(nil, "a"))
	assert.Equal(t, 1, compare("a", nil))
	assert.Equal(t, -1, compare(now, now.Add(time.Second)))
	assert.Equal(t, 0, compare(int64(3), float64(3)))
	assert.Equal(t, 1, compare(int64(10), 9))
	assert.Equal(t, -1, compare(false, true))
	assert.Equal(t, -1, compare("apple", "banana"))
}
