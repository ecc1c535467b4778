package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KV stores string values in the kv_store table.
type KV struct {
	db     *sql.DB
	driver string
}

// NewKV wraps a migrated database. driver picks the upsert dialect.
func NewKV(db *sql.DB, driver string) *KV {
	return &KV{db: db, driver: strings.ToLower(driver)}
}

// Read returns the value stored under key, reporting false when absent.
func (k *KV) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := k.db.QueryRowContext(ctx,
		`SELECT store_value FROM kv_store WHERE store_key = ?`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read key: %w", err)
	}
	return value, true, nil
}

// Write inserts or replaces the value under key.
func (k *KV) Write(ctx context.Context, key, value string) error {
	var stmt string
	switch k.driver {
	case "mysql":
		stmt = `INSERT INTO kv_store (store_key, store_value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE store_value = VALUES(store_value), updated_at = VALUES(updated_at)`
	default:
		stmt = `INSERT INTO kv_store (store_key, store_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(store_key) DO UPDATE SET store_value = excluded.store_value, updated_at = excluded.updated_at`
	}
	if _, err := k.db.ExecContext(ctx, stmt, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (k *KV) Remove(ctx context.Context, key string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM kv_store WHERE store_key = ?`, key); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}
