package database

import (
	"time"

	"github.com/uptrace/bun"
)

// BunKVEntry represents the kv_entries table for Bun ORM
type BunKVEntry struct {
	bun.BaseModel `bun:"table:kv_entries,alias:kv"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToKVEntry converts BunKVEntry to KVEntry
func (e *BunKVEntry) ToKVEntry() KVEntry {
	return KVEntry{
		Key:       e.Key,
		Value:     e.Value,
		UpdatedAt: e.UpdatedAt,
	}
}
