package migrations

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change with both directions.
// Checksum covers the up script so edits to applied migrations are caught.
type Migration struct {
	Version  int64
	Name     string
	Up       string
	Down     string
	Checksum string
}

func (m Migration) label() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// readSource collects dir/*.sql from fsys, pairs up and down scripts by
// version and returns them in ascending order.
func readSource(fsys fs.FS, dir string) ([]Migration, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, file := range files {
		parts := fileName.FindStringSubmatch(path.Base(file))
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", file, err)
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", file, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		} else if m.Name != parts[2] {
			return nil, fmt.Errorf("migration %d has mismatched names %q and %q", version, m.Name, parts[2])
		}
		if parts[3] == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %s missing up SQL", m.label())
		}
		if strings.TrimSpace(m.Down) == "" {
			return nil, fmt.Errorf("migration %s missing down SQL", m.label())
		}
		sum := sha256.Sum256([]byte(m.Up))
		m.Checksum = hex.EncodeToString(sum[:])
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// record is a row of the history table.
type record struct {
	Name     string
	Checksum string
}

// ChecksumMismatchError reports an applied migration whose up script has
// changed since it ran.
type ChecksumMismatchError struct {
	Version  int64
	Name     string
	Recorded string
	Current  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("migration %06d_%s changed after it was applied (recorded %.12s, source %.12s)",
		e.Version, e.Name, e.Recorded, e.Current)
}

// checkDrift compares history against source. Rows without a checksum are
// accepted.
func checkDrift(source []Migration, history map[int64]record) error {
	for _, m := range source {
		rec, ok := history[m.Version]
		if !ok || rec.Checksum == "" || rec.Checksum == m.Checksum {
			continue
		}
		return &ChecksumMismatchError{Version: m.Version, Name: m.Name, Recorded: rec.Checksum, Current: m.Checksum}
	}
	return nil
}

// planUp returns unapplied migrations in ascending order, at most steps
// when steps > 0.
func planUp(source []Migration, history map[int64]record, steps int) []Migration {
	var plan []Migration
	for _, m := range source {
		if _, done := history[m.Version]; done {
			continue
		}
		if steps > 0 && len(plan) == steps {
			break
		}
		plan = append(plan, m)
	}
	return plan
}

// planDown returns the latest applied migrations, newest first. steps <= 0
// means one.
func planDown(source []Migration, history map[int64]record, steps int) ([]Migration, error) {
	if steps <= 0 {
		steps = 1
	}
	known := make(map[int64]Migration, len(source))
	for _, m := range source {
		known[m.Version] = m
	}
	applied := make([]int64, 0, len(history))
	for version := range history {
		applied = append(applied, version)
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] > applied[j] })

	var plan []Migration
	for _, version := range applied {
		if len(plan) == steps {
			break
		}
		m, ok := known[version]
		if !ok {
			return nil, fmt.Errorf("applied migration %d is missing from source", version)
		}
		plan = append(plan, m)
	}
	return plan, nil
}
