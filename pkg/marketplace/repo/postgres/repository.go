package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/query"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements marketplace.Repository using PostgreSQL. Every
// entity table shares the same shape: system columns, optional moderation
// columns and the schema fields.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ marketplace.Repository = (*Repository)(nil)

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", marketplace.ErrDuplicate, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return marketplace.NewValidationError(pgErr.ColumnName, "is required")
		case "23514": // check_violation
			return marketplace.NewValidationError(pgErr.ColumnName, "is invalid")
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.ErrNotFound
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) Insert(ctx context.Context, schema *marketplace.Schema, rec *marketplace.Record) error {
	columns := schema.Columns()
	values := rowValues(schema, rec)

	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{schema.Table}.Sanitize(), strings.Join(quoted, ", "), strings.Join(params, ", "))
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return r.handlePostgresError("insert", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, schema *marketplace.Schema, id uuid.UUID) (*marketplace.Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		selectList(schema), pgx.Identifier{schema.Table}.Sanitize(), pgx.Identifier{marketplace.ColumnID}.Sanitize())

	rows, err := r.db.Query(ctx, sql, id)
	if err != nil {
		return nil, r.handlePostgresError("get", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, r.handlePostgresError("get", err)
	}
	return recordFromRow(schema, row)
}

// Update writes every column except id and created_at.
func (r *Repository) Update(ctx context.Context, schema *marketplace.Schema, rec *marketplace.Record) error {
	values := rowValues(schema, rec)

	args := []any{rec.ID}
	var sets []string
	for _, c := range schema.Columns() {
		if c == marketplace.ColumnID || c == marketplace.ColumnCreatedAt {
			continue
		}
		args = append(args, values[c])
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args)))
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1",
		pgx.Identifier{schema.Table}.Sanitize(), strings.Join(sets, ", "), pgx.Identifier{marketplace.ColumnID}.Sanitize())
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return r.handlePostgresError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, schema *marketplace.Schema, id uuid.UUID) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pgx.Identifier{schema.Table}.Sanitize(), pgx.Identifier{marketplace.ColumnID}.Sanitize())
	tag, err := r.db.Exec(ctx, sql, id)
	if err != nil {
		return r.handlePostgresError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, schema *marketplace.Schema, q marketplace.ListQuery) ([]*marketplace.Record, int64, error) {
	stmt, err := query.Build(query.Request{
		Table:         schema.Table,
		Columns:       schema.Columns(),
		Allowed:       schema.FilterColumns(),
		Filters:       q.Filters,
		Search:        q.Search,
		SearchColumns: schema.SearchColumns(),
		Sortable:      schema.Columns(),
		OrderBy:       q.OrderBy,
		Direction:     q.Direction,
		TieBreaker:    marketplace.ColumnID,
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
	if err != nil {
		return nil, 0, err
	}

	rows, total, err := query.Execute(ctx, r.db, stmt)
	if err != nil {
		return nil, 0, r.handlePostgresError("list", err)
	}

	items := make([]*marketplace.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromRow(schema, row)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func selectList(schema *marketplace.Schema) string {
	cols := schema.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// rowValues flattens a record into column values.
func rowValues(schema *marketplace.Schema, rec *marketplace.Record) map[string]any {
	values := make(map[string]any, len(rec.Attributes)+5)
	for _, c := range schema.AttributeColumns() {
		values[c] = rec.Attributes[c]
	}
	values[marketplace.ColumnID] = rec.ID
	values[marketplace.ColumnIsActive] = rec.IsActive
	values[marketplace.ColumnCreatedAt] = rec.CreatedAt
	values[marketplace.ColumnUpdatedAt] = rec.UpdatedAt
	if schema.Moderated {
		status := rec.Status
		if status == "" {
			status = marketplace.StatusPending
		}
		values[marketplace.ColumnStatus] = string(status)
	}
	return values
}

func recordFromRow(schema *marketplace.Schema, row map[string]any) (*marketplace.Record, error) {
	rec := &marketplace.Record{Attributes: make(map[string]any, len(row))}

	id, err := toUUID(row[marketplace.ColumnID])
	if err != nil {
		return nil, err
	}
	rec.ID = id
	rec.IsActive, _ = row[marketplace.ColumnIsActive].(bool)
	rec.CreatedAt, _ = row[marketplace.ColumnCreatedAt].(time.Time)
	rec.UpdatedAt, _ = row[marketplace.ColumnUpdatedAt].(time.Time)
	if s, ok := row[marketplace.ColumnStatus].(string); ok {
		rec.Status = marketplace.Status(s)
	}

	for _, c := range schema.AttributeColumns() {
		v := row[c]
		if b, ok := v.([16]byte); ok {
			v = uuid.UUID(b).String()
		}
		rec.Attributes[c] = v
	}
	return rec, nil
}

func toUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case [16]byte:
		return uuid.UUID(id), nil
	case uuid.UUID:
		return id, nil
	case string:
		return uuid.Parse(id)
	}
	return uuid.Nil, fmt.Errorf("unexpected id type %T", v)
}
