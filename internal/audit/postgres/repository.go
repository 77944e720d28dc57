package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/psaforge/copilot/internal/audit"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, entry audit.Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
INSERT INTO copilot_query_audit (trace_id, tenant_id, prompt, sql_text, outcome, error_kind, row_count, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.TenantID,
		entry.Prompt,
		nullString(entry.SQL),
		entry.Outcome,
		nullString(entry.ErrorKind),
		entry.RowCount,
		entry.Duration.Milliseconds(),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *Repository) Recent(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT audit_id, trace_id, tenant_id, prompt, sql_text, outcome, error_kind, row_count, duration_ms, created_at
FROM copilot_query_audit
WHERE tenant_id = $1
ORDER BY created_at DESC, audit_id DESC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			entry      audit.Entry
			sqlText    sql.NullString
			errorKind  sql.NullString
			durationMS int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TraceID,
			&entry.TenantID,
			&entry.Prompt,
			&sqlText,
			&entry.Outcome,
			&errorKind,
			&entry.RowCount,
			&durationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entry.SQL = sqlText.String
		entry.ErrorKind = errorKind.String
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
