package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backoffice/internal/entity"

	_ "modernc.org/sqlite" // driver: sqlite
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mirror (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLite зеркало в одном файле базы: таблица ключ → JSON.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "mirror.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mirror dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// одна запись за раз: sqlite не любит параллельных писателей
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("mirror schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) ([]entity.Entity, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM mirror WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &entity.MirrorError{Key: key, Op: "load", Err: err}
	}
	return decode(key, []byte(value))
}

func (s *SQLite) Save(ctx context.Context, key string, items []entity.Entity) error {
	data, err := encode(items)
	if err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO mirror (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
