package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteBackend struct {
	db *sql.DB
}

// openSQLite opens or creates the database at path. ":memory:" keeps
// everything in memory.
func openSQLite(path string) (*sqliteBackend, error) {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".smartwindow", "smartwindow.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	b := &sqliteBackend{db: db}
	if err := b.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqliteBackend) initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS selection_records (
			key        TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_cache (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor     TEXT NOT NULL,
			date       TEXT NOT NULL,
			prices     TEXT NOT NULL,
			fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(sensor, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_cache_date ON price_cache(sensor, date)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

func (b *sqliteBackend) loadRecords(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, data FROM selection_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]byte{}
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		out[key] = []byte(data)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) saveRecord(ctx context.Context, key string, data []byte) error {
	query := `INSERT OR REPLACE INTO selection_records (key, data, updated_at) VALUES (?, ?, ?)`
	_, err := b.db.ExecContext(ctx, query, key, string(data), time.Now())
	return err
}

func (b *sqliteBackend) deleteRecord(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM selection_records WHERE key = ?`, key)
	return err
}

func (b *sqliteBackend) deleteAll(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM selection_records`)
	return err
}

func (b *sqliteBackend) savePrices(ctx context.Context, sensor, date string, data []byte) error {
	query := `INSERT OR REPLACE INTO price_cache (sensor, date, prices, fetched_at)
		VALUES (?, ?, ?, ?)`
	_, err := b.db.ExecContext(ctx, query, sensor, date, string(data), time.Now())
	return err
}

func (b *sqliteBackend) loadPrices(ctx context.Context, sensor, date string) ([]byte, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT prices FROM price_cache WHERE sensor = ? AND date = ?`, sensor, date).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}
