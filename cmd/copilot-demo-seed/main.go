package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/psaforge/copilot/internal/demo/seed"
)

func main() {
	path := flag.String("path", os.Getenv("COPILOT_DUCKDB_PATH"), "DuckDB file to create or refresh")
	clients := flag.Int("clients", 25, "number of clients to generate")
	tickets := flag.Int("tickets-per-client", 8, "tickets generated per client")
	seedValue := flag.Int64("seed", time.Now().UTC().UnixNano(), "random seed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if *clients <= 0 || *tickets < 0 {
		logger.Error("clients must be positive and tickets-per-client non-negative")
		os.Exit(2)
	}

	db, err := seed.OpenDuckDB(*path)
	if err != nil {
		logger.Error("failed to open demo database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dataset := seed.NewGenerator(*seedValue).Generate(*clients, *tickets)
	if err := seed.Load(ctx, db, dataset); err != nil {
		logger.Error("failed to seed demo database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo database seeded",
		slog.String("path", *path),
		slog.Int("clients", len(dataset.Clients)),
		slog.Int("tickets", len(dataset.Tickets)),
		slog.Int64("seed", *seedValue),
	)
}
