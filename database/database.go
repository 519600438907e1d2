package database

import (
	"context"
	"log/slog"
	"time"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// KVEntry is one row of the key-value store
type KVEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// KVStore is the metadata store used by the HTTP layer
type KVStore interface {
	// Get returns ok == false when the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set inserts or replaces the value for key
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for absent keys
	Delete(ctx context.Context, key string) error
	// List returns the entries whose key starts with prefix, ordered by key
	List(ctx context.Context, prefix string) ([]KVEntry, error)
	Close() error
}

var _ KVStore = (*BunDB)(nil)
