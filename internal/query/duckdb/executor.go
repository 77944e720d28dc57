package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/psaforge/copilot/internal/query"
)

// openOptions keeps the file read-only and turns off access to anything
// outside it (read_text, read_csv, httpfs, ATTACH). DuckDB refuses to turn
// external access back on while the database is open.
const openOptions = "access_mode=read_only&enable_external_access=false"

// Executor queries a local DuckDB file opened read-only. It has no notion of
// tenants; TenantID is ignored.
type Executor struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Executor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}

	db, err := sql.Open("duckdb", path+"?"+openOptions)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Executor{db: db}, nil
}

func (e *Executor) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, request.SQL)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, records, err := query.CollectRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Columns:  columns,
		Rows:     records,
		Duration: time.Since(start),
	}, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Executor) Close() error {
	return e.db.Close()
}
