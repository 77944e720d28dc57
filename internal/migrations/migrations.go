package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

const historyTable = "copilot_schema_migrations"

// lockKey is the pg advisory lock that serializes concurrent migrators.
const lockKey int64 = 7_411_082_116

// Runner applies the copilot schema: the audit table, the execute_sql
// entry point and the read-only role. Every step runs in its own
// transaction under an advisory lock and re-checks history after locking,
// so two migrators racing on one database apply each version once.
type Runner struct {
	fsys fs.FS
	dir  string
}

func NewRunner() *Runner {
	return &Runner{fsys: embedded, dir: "sql"}
}

// NewRunnerFS reads migrations from fsys/sql instead of the embedded set.
func NewRunnerFS(fsys fs.FS) *Runner {
	return &Runner{fsys: fsys, dir: "sql"}
}

// Status is one source migration and its applied state.
type Status struct {
	Migration
	Applied   bool
	AppliedAt time.Time
	Drifted   bool
}

func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	source, history, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	if err := checkDrift(source, history); err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range planUp(source, history, steps) {
		ran, err := r.step(ctx, db, m, true)
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", m.label(), err)
		}
		if ran {
			applied++
		}
	}
	return applied, nil
}

func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	source, history, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	plan, err := planDown(source, history, steps)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, m := range plan {
		ran, err := r.step(ctx, db, m, false)
		if err != nil {
			return reverted, fmt.Errorf("revert %s: %w", m.label(), err)
		}
		if ran {
			reverted++
		}
	}
	return reverted, nil
}

// Version returns the highest applied migration, or 0 when none is applied.
func (r *Runner) Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := ensureHistory(ctx, db); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+historyTable).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version.Int64, nil
}

// Status lists every source migration with its applied time and whether
// its up script changed since it ran.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	source, err := readSource(r.fsys, r.dir)
	if err != nil {
		return nil, err
	}
	if err := ensureHistory(ctx, db); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT version, checksum, applied_at FROM `+historyTable)
	if err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type appliedRow struct {
		checksum string
		at       time.Time
	}
	applied := map[int64]appliedRow{}
	for rows.Next() {
		var (
			version int64
			row     appliedRow
		)
		if err := rows.Scan(&version, &row.checksum, &row.at); err != nil {
			return nil, fmt.Errorf("scan migration history: %w", err)
		}
		applied[version] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}

	out := make([]Status, 0, len(source))
	for _, m := range source {
		status := Status{Migration: m}
		if row, ok := applied[m.Version]; ok {
			status.Applied = true
			status.AppliedAt = row.at
			status.Drifted = row.checksum != "" && row.checksum != m.Checksum
		}
		out = append(out, status)
	}
	return out, nil
}

func (r *Runner) prepare(ctx context.Context, db *sql.DB) ([]Migration, map[int64]record, error) {
	source, err := readSource(r.fsys, r.dir)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureHistory(ctx, db); err != nil {
		return nil, nil, err
	}
	history, err := readHistory(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return source, history, nil
}

// step applies (up) or reverts m. It reports false when another migrator
// already moved the version to the wanted state.
func (r *Runner) step(ctx context.Context, db *sql.DB, m Migration, up bool) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("acquire migration lock: %w", err)
	}
	var present bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+historyTable+` WHERE version = $1)`, m.Version,
	).Scan(&present); err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	if present == up {
		return false, nil
	}

	if up {
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+historyTable+` (version, name, checksum) VALUES ($1, $2, $3)`,
			m.Version, m.Name, m.Checksum,
		); err != nil {
			return false, fmt.Errorf("record history: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+historyTable+` WHERE version = $1`, m.Version); err != nil {
			return false, fmt.Errorf("remove history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func ensureHistory(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+historyTable+` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create migration history: %w", err)
	}
	return nil
}

func readHistory(ctx context.Context, db *sql.DB) (map[int64]record, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, name, checksum FROM `+historyTable)
	if err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := map[int64]record{}
	for rows.Next() {
		var (
			version int64
			rec     record
		)
		if err := rows.Scan(&version, &rec.Name, &rec.Checksum); err != nil {
			return nil, fmt.Errorf("scan migration history: %w", err)
		}
		history[version] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	return history, nil
}
