package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/stapelberg/postgrestest"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// newEphemeralRepository starts a throwaway PostgreSQL server for development.
// The server is removed when the returned BunDB is closed.
func newEphemeralRepository(ctx context.Context) (*BunDB, error) {
	Logger.Info("Starting ephemeral PostgreSQL server...")

	pgt, err := postgrestest.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start ephemeral postgres: %w", err)
	}
	Logger.Info("Ephemeral PostgreSQL server started", "dsn", pgt.DefaultDatabase())

	dsn, err := pgt.CreateDatabase(ctx)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	Logger.Info("Created ephemeral database", "dsn", dsn)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runPostgresMigrations(db); err != nil {
		db.Close()
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	b := newBunDB(db, pgdialect.New(), "ephemeral")
	b.cleanup = pgt.Cleanup
	return b, nil
}
