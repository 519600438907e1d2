package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type migration struct {
	version string
	name    string
	up      func(context.Context, *bun.DB) error
}

// sqliteMigrations mirrors the SQL files applied to postgres by golang-migrate
var sqliteMigrations = []migration{
	{"001", "create_kv_entries", init001CreateKVEntries},
	{"002", "index_kv_updated_at", init002IndexUpdatedAt},
}

// runMigrations runs all Bun migrations
func (b *BunDB) runMigrations(ctx context.Context) error {
	// Create a simple migrations tracking table
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bun_schema_migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	type AppliedMigration struct {
		bun.BaseModel `bun:"table:bun_schema_migrations"`
		Version       string `bun:"version"`
	}
	var applied []AppliedMigration
	err = b.db.NewSelect().
		Model(&applied).
		Column("version").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	for _, m := range sqliteMigrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, b.db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		_, err = b.db.NewInsert().
			Model(&AppliedMigration{Version: m.version}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Info("All migrations completed successfully")
	return nil
}

// Migration 001: key-value table holding resume records and hash index
func init001CreateKVEntries(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*BunKVEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Migration 002: updated_at index for housekeeping scans
func init002IndexUpdatedAt(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateIndex().
		Model((*BunKVEntry)(nil)).
		Index("idx_kv_entries_updated_at").
		IfNotExists().
		Column("updated_at").
		Exec(ctx)
	return err
}
