// Package mirror постоянная локальная копия коллекций: по одному ключу на вид сущности.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"backoffice/internal/entity"
)

// KeyPrefix пространство имён ключей зеркала.
const KeyPrefix = "backoffice:"

// Key ключ зеркала для вида сущности.
func Key(kind string) string { return KeyPrefix + kind }

// Mirror хранит снимки коллекций. Отсутствующий ключ: пустой результат без ошибки;
// испорченное значение: ошибка.
type Mirror interface {
	Load(ctx context.Context, key string) ([]entity.Entity, error)
	Save(ctx context.Context, key string, items []entity.Entity) error
}

// Config выбор драйвера.
type Config struct {
	Driver string // memory | file | sqlite | postgres
	Path   string // каталог (file) или файл базы (sqlite)
	DSN    string // postgres
}

// Open открывает зеркало по имени драйвера. Вызывающий закрывает его через Close,
// если драйвер реализует io.Closer.
func Open(ctx context.Context, cfg Config) (Mirror, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres", "pg":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown mirror driver %q", cfg.Driver)
	}
}

// Close закрывает зеркало, если оно держит ресурсы.
func Close(m Mirror) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func encode(items []entity.Entity) ([]byte, error) {
	if items == nil {
		items = []entity.Entity{}
	}
	return json.Marshal(items)
}

func decode(key string, data []byte) ([]entity.Entity, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []entity.Entity
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &entity.MirrorError{Key: key, Op: "load", Err: fmt.Errorf("corrupt value: %w", err)}
	}
	return items, nil
}
