package seed

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		industry VARCHAR NOT NULL,
		country VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id BIGINT PRIMARY KEY,
		client_id BIGINT NOT NULL REFERENCES clients(id),
		subject VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		priority VARCHAR NOT NULL,
		hours_logged DOUBLE NOT NULL,
		opened_at TIMESTAMP NOT NULL
	)`,
}

// OpenDuckDB opens path for writing; the API opens the same file read-only.
func OpenDuckDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// Load replaces the demo tables' contents with dataset in one transaction.
func Load(ctx context.Context, db *sql.DB, dataset Dataset) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range schemaStatements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("create demo schema: %w", err)
		}
	}
	for _, statement := range []string{`DELETE FROM tickets`, `DELETE FROM clients`} {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("clear demo tables: %w", err)
		}
	}

	for _, client := range dataset.Clients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clients (id, name, industry, country, created_at) VALUES (?, ?, ?, ?, ?)`,
			client.ID, client.Name, client.Industry, client.Country, client.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert client %d: %w", client.ID, err)
		}
	}
	for _, ticket := range dataset.Tickets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tickets (id, client_id, subject, status, priority, hours_logged, opened_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ticket.ID, ticket.ClientID, ticket.Subject, ticket.Status, ticket.Priority, ticket.HoursLogged, ticket.OpenedAt,
		); err != nil {
			return fmt.Errorf("insert ticket %d: %w", ticket.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}
