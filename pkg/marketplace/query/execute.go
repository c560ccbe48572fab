package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx used to run a Statement. Both *pgxpool.Pool
// and pgx.Tx satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Execute runs the page and count statements. Rows are returned as column
// name to value maps.
func Execute(ctx context.Context, db Querier, stmt *Statement) ([]map[string]any, int64, error) {
	rows, err := db.Query(ctx, stmt.PageSQL, stmt.PageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("page query: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, 0, fmt.Errorf("page query: %w", err)
	}

	var total int64
	if err := db.QueryRow(ctx, stmt.CountSQL, stmt.CountArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query: %w", err)
	}
	return items, total, nil
}
