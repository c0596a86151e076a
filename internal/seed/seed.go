// Package seed встроенные коллекции по умолчанию: используются, когда ни удалённый
// сервис, ни зеркало не вернули данных.
package seed

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"backoffice/internal/entity"
)

//go:embed defaults/*.yaml
var defaults embed.FS

// Source выдаёт набор по умолчанию для вида сущности.
type Source interface {
	Defaults(kind string) ([]entity.Entity, error)
}

// Embedded наборы, вшитые в бинарник.
type Embedded struct{}

func (Embedded) Defaults(kind string) ([]entity.Entity, error) {
	return Load(defaults, "defaults/"+kind+".yaml")
}

// Static фиксированные наборы (для тестов и встраивания).
type Static map[string][]entity.Entity

func (s Static) Defaults(kind string) ([]entity.Entity, error) {
	items := s[kind]
	out := make([]entity.Entity, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out, nil
}

// Load читает YAML-список записей. Отсутствующий файл: пустой набор.
func Load(fsys fs.FS, path string) ([]entity.Entity, error) {
	data, err := fs.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	out := make([]entity.Entity, 0, len(rows))
	for i, row := range rows {
		id := entity.Stringify(normalize(row[entity.KeyID]))
		if id == "" {
			return nil, fmt.Errorf("seed %s: row %d without id", path, i)
		}
		attrs := make(map[string]any, len(row))
		for k, v := range row {
			if k == entity.KeyID {
				continue
			}
			attrs[k] = normalize(v)
		}
		out = append(out, entity.New(entity.ServerID(id), attrs))
	}
	return out, nil
}

// YAML отдаёт int/time.Time, а коллекция живёт в JSON-типах.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		f, _ := strconv.ParseFloat(strconv.FormatUint(t, 10), 64)
		return f
	case time.Time:
		return t.Format("2006-01-02")
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalize(x)
		}
		return out
	}
	return v
}
