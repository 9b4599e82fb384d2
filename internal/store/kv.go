package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// putBlob upserts the serialized list stored under key.
func (s *Store) putBlob(key string, value []byte) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO lists (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, string(value), now, string(value), now,
	)
	return err
}

// getBlob returns the serialized list stored under key.
// Returns nil and a nil error if the key is missing.
func (s *Store) getBlob(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM lists WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// loadList decodes the list under key. A missing or malformed blob yields an
// empty list; the malformed case is logged and left in place until the next
// save overwrites it.
func loadList[T any](s *Store, key string) ([]T, error) {
	raw, err := s.getBlob(key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []T{}, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		s.log.Warn("malformed stored list, starting empty", "key", key, "error", err)
		return []T{}, nil
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

func saveList[T any](s *Store, key string, list []T) error {
	if list == nil {
		list = []T{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.putBlob(key, raw)
}
