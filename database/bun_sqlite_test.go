package database

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/drummonds/resumeraster/config"
	"github.com/google/go-cmp/cmp"
)

func newMemoryRepository(t *testing.T) *BunDB {
	t.Helper()
	Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	db, err := NewRepository(config.ServerConfig{DatabaseType: "sqlite", DatabaseDbname: MemoryDatabase})
	if err != nil {
		t.Fatalf("Failed to create sqlite repository: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBunSQLiteKVStore(t *testing.T) {
	ctx := context.Background()
	db := newMemoryRepository(t)

	t.Run("Get absent key", func(t *testing.T) {
		value, ok, err := db.Get(ctx, "resume:missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if ok || value != "" {
			t.Errorf("Expected absent key, got %q, %v", value, ok)
		}
	})

	t.Run("Set then get", func(t *testing.T) {
		if err := db.Set(ctx, "resume:01", `{"id":"01"}`); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		value, ok, err := db.Get(ctx, "resume:01")
		if err != nil || !ok {
			t.Fatalf("Get failed: %v, %v", ok, err)
		}
		if value != `{"id":"01"}` {
			t.Errorf("Expected stored value, got %q", value)
		}
	})

	t.Run("Set replaces value", func(t *testing.T) {
		if err := db.Set(ctx, "resume:01", `{"id":"01","v":2}`); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		value, _, _ := db.Get(ctx, "resume:01")
		if value != `{"id":"01","v":2}` {
			t.Errorf("Expected replaced value, got %q", value)
		}
	})

	t.Run("List by prefix", func(t *testing.T) {
		for key, value := range map[string]string{
			"resume:03": "c",
			"resume:02": "b",
			"Resume:99": "upper case is a different prefix",
			"resume_x":  "underscore is not a wildcard",
			"hash:abc":  "01",
		} {
			if err := db.Set(ctx, key, value); err != nil {
				t.Fatalf("Set(%q) failed: %v", key, err)
			}
		}

		entries, err := db.List(ctx, "resume:")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		var keys []string
		for _, e := range entries {
			keys = append(keys, e.Key)
			if e.UpdatedAt.IsZero() {
				t.Errorf("Expected updated_at for %q", e.Key)
			}
		}
		if diff := cmp.Diff([]string{"resume:01", "resume:02", "resume:03"}, keys); diff != "" {
			t.Errorf("List mismatch (-want +got):\n%s", diff)
		}

		all, err := db.List(ctx, "")
		if err != nil {
			t.Fatalf("List all failed: %v", err)
		}
		if len(all) != 6 {
			t.Errorf("Expected 6 entries, got %d", len(all))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := db.Delete(ctx, "resume:01"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok, _ := db.Get(ctx, "resume:01"); ok {
			t.Error("Expected key to be gone")
		}
		if err := db.Delete(ctx, "resume:01"); err != nil {
			t.Errorf("Deleting an absent key should succeed, got %v", err)
		}
	})
}

func TestBunSQLiteMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newMemoryRepository(t)

	if err := db.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := db.runMigrations(ctx); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if value, ok, _ := db.Get(ctx, "k"); !ok || value != "v" {
		t.Errorf("Expected data to survive re-migration, got %q, %v", value, ok)
	}
}

func TestMemoryRepositoriesAreIsolated(t *testing.T) {
	ctx := context.Background()
	first := newMemoryRepository(t)
	second := newMemoryRepository(t)

	if err := first.Set(ctx, "only-in-first", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := second.Get(ctx, "only-in-first"); ok {
		t.Error("In-memory repositories must not share state")
	}
}

func TestNewRepositoryUnknownType(t *testing.T) {
	if _, err := NewRepository(config.ServerConfig{DatabaseType: "oracle"}); err == nil {
		t.Error("Expected error for unknown database type")
	}
}

func TestSQLiteConnectionString(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := map[string]string{
		MemoryDatabase: "file::memory:",
		"resumes":      "file:databases/resumes.sqlite?cache=shared&mode=rwc",
		"data/test.db": "file:data/test.db?cache=shared&mode=rwc",
		"":             "file:databases/resumeraster.sqlite?cache=shared&mode=rwc",
	}
	for name, expected := range tests {
		got, err := sqliteConnectionString(name)
		if err != nil {
			t.Fatalf("sqliteConnectionString(%q) failed: %v", name, err)
		}
		if got != expected {
			t.Errorf("sqliteConnectionString(%q) = %q, expected %q", name, got, expected)
		}
	}
	if _, err := os.Stat("databases"); err != nil {
		t.Errorf("Expected databases folder to be created: %v", err)
	}
}
