package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"backoffice/internal/entity"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
)

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS backoffice_mirror (
		key        text PRIMARY KEY,
		value      jsonb NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS backoffice_mirror_updated_idx ON backoffice_mirror (updated_at)`,
}

// Postgres зеркало в общей базе: удобно, когда несколько инстансов админки
// должны видеть один и тот же снимок.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres mirror: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applyDDL(ctx, db, postgresDDL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// applyDDL выполняет идемпотентный DDL; duplicate_object (42710) пропускаем.
func applyDDL(ctx context.Context, db *sql.DB, stmts []string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42710" {
				slog.Debug("DDL skipped (already exists)", "message", strings.TrimSpace(pgErr.Message))
				continue
			}
			return fmt.Errorf("DDL apply failed: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, key string) ([]entity.Entity, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM backoffice_mirror WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &entity.MirrorError{Key: key, Op: "load", Err: err}
	}
	return decode(key, value)
}

func (p *Postgres) Save(ctx context.Context, key string, items []entity.Entity) error {
	data, err := encode(items)
	if err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO backoffice_mirror (key, value, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(data))
	if err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
