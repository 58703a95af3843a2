package database

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// SettingsStore persists runtime-adjustable settings as key/value rows.
// Reads go through a write-through cache because the engines consult
// settings on every worker iteration.
type SettingsStore struct {
	db *DB

	mu    sync.RWMutex
	cache map[string]string
}

func NewSettingsStore(db *DB) (*SettingsStore, error) {
	s := &SettingsStore{db: db, cache: make(map[string]string)}

	rows, err := db.sql.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		s.cache[k] = v
	}
	return s, rows.Err()
}

// Get returns the stored value, or fallback when the key was never set.
func (s *SettingsStore) Get(key, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.cache[key]; ok {
		return v
	}
	return fallback
}

func (s *SettingsStore) GetInt(key string, fallback int) int {
	v := s.Get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s *SettingsStore) GetBool(key string, fallback bool) bool {
	v := s.Get(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Set writes the value and updates the cache.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.sql.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// All returns a copy of every stored setting.
func (s *SettingsStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}
