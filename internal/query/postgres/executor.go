package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/psaforge/copilot/internal/query"
)

type ExecutorConfig struct {
	// RPCFunction names the SQL function that runs a statement and returns a
	// JSON array of records. Empty runs the statement directly.
	RPCFunction      string
	ReadOnlyRole     string
	StatementTimeout time.Duration
	TenantSetting    string
}

// Executor runs validated statements inside a read-only transaction that is
// always rolled back.
type Executor struct {
	db  *sql.DB
	cfg ExecutorConfig
}

func NewExecutor(db *sql.DB, cfg ExecutorConfig) *Executor {
	cfg.RPCFunction = strings.TrimSpace(cfg.RPCFunction)
	cfg.ReadOnlyRole = strings.TrimSpace(cfg.ReadOnlyRole)
	cfg.TenantSetting = strings.TrimSpace(cfg.TenantSetting)
	return &Executor{db: db, cfg: cfg}
}

func (e *Executor) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := e.prepareSession(ctx, tx, request.TenantID); err != nil {
		return query.Result{}, err
	}

	var (
		columns []string
		records []map[string]any
	)
	if e.cfg.RPCFunction != "" {
		columns, records, err = e.executeRPC(ctx, tx, request.SQL)
	} else {
		columns, records, err = executeDirect(ctx, tx, request.SQL)
	}
	if err != nil {
		return query.Result{}, err
	}

	return query.Result{
		Columns:  columns,
		Rows:     records,
		Duration: time.Since(start),
	}, nil
}

func (e *Executor) prepareSession(ctx context.Context, tx *sql.Tx, tenantID string) error {
	if e.cfg.ReadOnlyRole != "" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL ROLE "+pgx.Identifier{e.cfg.ReadOnlyRole}.Sanitize()); err != nil {
			return fmt.Errorf("set read-only role: %w", err)
		}
	}
	if e.cfg.StatementTimeout > 0 {
		timeout := strconv.FormatInt(e.cfg.StatementTimeout.Milliseconds(), 10)
		if _, err := tx.ExecContext(ctx, `SELECT set_config('statement_timeout', $1, true)`, timeout); err != nil {
			return fmt.Errorf("set statement timeout: %w", err)
		}
	}
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" && e.cfg.TenantSetting != "" {
		if _, err := tx.ExecContext(ctx, `SELECT set_config($1, $2, true)`, e.cfg.TenantSetting, tenantID); err != nil {
			return fmt.Errorf("set tenant context: %w", err)
		}
	}
	return nil
}

func (e *Executor) executeRPC(ctx context.Context, tx *sql.Tx, statement string) ([]string, []map[string]any, error) {
	call := fmt.Sprintf("SELECT %s($1)", pgx.Identifier(strings.Split(e.cfg.RPCFunction, ".")).Sanitize())

	var raw []byte
	if err := tx.QueryRowContext(ctx, call, statement).Scan(&raw); err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	return decodeRecords(raw)
}

func executeDirect(ctx context.Context, tx *sql.Tx, statement string) ([]string, []map[string]any, error) {
	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return query.CollectRows(rows)
}

// decodeRecords parses the function's JSON array. NULL and an empty array
// both yield zero records.
func decodeRecords(raw []byte) ([]string, []map[string]any, error) {
	records := make([]map[string]any, 0)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, records, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&records); err != nil {
		return nil, nil, fmt.Errorf("decode query result: %w", err)
	}

	seen := map[string]struct{}{}
	columns := make([]string, 0)
	for _, record := range records {
		for key := range record {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	sort.Strings(columns)
	return columns, records, nil
}
