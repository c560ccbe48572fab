package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/entities"
)

// setupTestDB starts PostgreSQL in a container, applies migrations and
// returns a connected pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("marketplace_test"),
		postgres.WithUsername("marketplace"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://marketplace:test-password@%s:%s/marketplace_test?sslmode=disable", host, port.Port())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	require.NoError(t, Migrate(dsn, logger))
	// second run is a no-op
	require.NoError(t, Migrate(dsn, logger))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func newAward(name, category string, created time.Time) *marketplace.Record {
	return &marketplace.Record{
		ID:        uuid.New(),
		Status:    marketplace.StatusPending,
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
		Attributes: map[string]any{
			"name":                         name,
			"category":                     category,
			"entry_fee":                    float64(100),
			"award_date":                   time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
			marketplace.ColumnSubmittedBy: "user-1",
		},
	}
}

func TestRepository_CRUD(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewWithPool(pool)
	ctx := context.Background()
	schema := entities.Awards

	rec := newAward("Digital PR Awards", "Technology", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Insert(ctx, schema, rec))

	got, err := repo.Get(ctx, schema, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, marketplace.StatusPending, got.Status)
	assert.Equal(t, "Digital PR Awards", got.Attributes["name"])
	assert.Equal(t, float64(100), got.Attributes["entry_fee"])
	assert.Nil(t, got.Attributes["website"])
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	got.Status = marketplace.StatusApproved
	got.Attributes["approved_by"] = "admin-1"
	require.NoError(t, repo.Update(ctx, schema, got))

	updated, err := repo.Get(ctx, schema, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusApproved, updated.Status)
	assert.Equal(t, "admin-1", updated.Attributes["approved_by"])

	require.NoError(t, repo.Delete(ctx, schema, rec.ID))
	_, err = repo.Get(ctx, schema, rec.ID)
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, schema, rec.ID), marketplace.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, schema, rec), marketplace.ErrNotFound)
}

func TestRepository_List(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewWithPool(pool)
	ctx := context.Background()
	schema := entities.Awards

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, c := range []string{"Technology", "Finance", "Technology"} {
		rec := newAward(fmt.Sprintf("Award %d", i), c, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Insert(ctx, schema, rec))
	}

	items, total, err := repo.List(ctx, schema, marketplace.ListQuery{
		Filters: map[string]any{"category": "Technology"},
		Limit:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Award 2", items[0].Attributes["name"])

	items, total, err = repo.List(ctx, schema, marketplace.ListQuery{Search: "award 1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	items, _, err = repo.List(ctx, schema, marketplace.ListQuery{OrderBy: "created_at", Direction: "asc"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Award 0", items[0].Attributes["name"])
}

func TestRepository_SearchMisses(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewWithPool(pool)
	ctx := context.Background()
	schema := entities.Awards

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, name := range []string{"Forbes Middle East Awards", "Gulf Business Awards"} {
		require.NoError(t, repo.Insert(ctx, schema, newAward(name, "Media", base.Add(time.Duration(i)*time.Minute))))
	}

	items, total, err := repo.List(ctx, schema, marketplace.ListQuery{Search: "forbess"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	for _, term := range []string{"forbes", "MIDDLE"} {
		items, total, err := repo.List(ctx, schema, marketplace.ListQuery{Search: term, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total, term)
		require.Len(t, items, 1)
		assert.Equal(t, "Forbes Middle East Awards", items[0].Attributes["name"])
	}

	_, small, err := repo.List(ctx, schema, marketplace.ListQuery{Search: "awards", Limit: 1})
	require.NoError(t, err)
	_, large, err := repo.List(ctx, schema, marketplace.ListQuery{Search: "awards", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(2), small)
	assert.Equal(t, large, small)
}

func TestRepository_UniqueAgencyEmail(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewWithPool(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	mk := func() *marketplace.Record {
		return &marketplace.Record{
			ID: uuid.New(), Status: marketplace.StatusApproved, IsActive: true, CreatedAt: now, UpdatedAt: now,
			Attributes: map[string]any{"name": "Bright PR", "contact_email": "hello@bright.example.com"},
		}
	}
	require.NoError(t, repo.Insert(ctx, entities.Agencies, mk()))
	err := repo.Insert(ctx, entities.Agencies, mk())
	assert.ErrorIs(t, err, marketplace.ErrDuplicate)
}

func TestHandlePostgresError(t *testing.T) {
	r := &Repository{}

	err := r.handlePostgresError("insert", &pgconn.PgError{Code: "23505", ConstraintName: "agencies_contact_email_key"})
	assert.ErrorIs(t, err, marketplace.ErrDuplicate)

	err = r.handlePostgresError("insert", &pgconn.PgError{Code: "23502", ColumnName: "name"})
	var verr *marketplace.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["name"])

	err = r.handlePostgresError("get", fmt.Errorf("wrapped: %w", errors.New("boom")))
	assert.Contains(t, err.Error(), "database error in get")
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", MigrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u:p@h/db", MigrateURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", MigrateURL("pgx5://h/db"))
}
