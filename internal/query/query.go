package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Request is one validated read-only statement. TenantID is exposed to
// row-level security by executors that support it.
type Request struct {
	SQL      string
	TenantID string
}

type Result struct {
	Columns  []string
	Rows     []map[string]any
	Duration time.Duration
}

type Executor interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// CollectRows drains rows into records keyed by column name.
func CollectRows(rows *sql.Rows) ([]string, []map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	records := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, value := range normalizeValues(values) {
			record[columns[i]] = value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, records, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
