package store

import (
	"database/sql"
	"time"
)

// SetPipelineState stores a pipeline checkpoint or counter value.
func (db *DB) SetPipelineState(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO pipeline_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetPipelineState retrieves a pipeline checkpoint value. Returns "" when the
// key has never been written.
func (db *DB) GetPipelineState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM pipeline_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
