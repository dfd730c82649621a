package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS config_entries (
    entry_id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    payload TEXT NOT NULL
);`

// SQLiteStore keeps one row per entry. Position preserves insertion order.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(fileName string) (*SQLiteStore, error) {
	if dir := filepath.Dir(fileName); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", fileName)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fileName, err)
	}
	// a single connection keeps in-memory databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table in %s: %w", fileName, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]domain.ConfigurationEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM config_entries ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.ConfigurationEntry{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry domain.ConfigurationEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, err
		}
		entry.Sensors = domain.CloneSensors(entry.Sensors)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Save rewrites the table in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []domain.ConfigurationEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM config_entries"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO config_entries(entry_id, position, payload) VALUES(?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, entry.EntryId, i, string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
