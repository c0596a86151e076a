package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalogs/*.yaml
var builtinCatalogs embed.FS

// Catalog справочник опций для select/multiselect (select[@name]).
type Catalog struct {
	Name  string        `yaml:"name"`
	Items []CatalogItem `yaml:"items"`
}

type CatalogItem struct {
	Code  string `yaml:"code"`
	Name  string `yaml:"name"`
	Order int    `yaml:"order,omitempty"`
}

// Options опции в порядке order, затем в порядке файла.
func (c Catalog) Options() []Option {
	items := append([]CatalogItem(nil), c.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	out := make([]Option, 0, len(items))
	for _, it := range items {
		label := it.Name
		if label == "" {
			label = it.Code
		}
		out = append(out, Option{Value: it.Code, Label: label})
	}
	return out
}

// LoadCatalogs читает все *.yaml/*.yml из fsys. Имя: из поля name или из имени файла.
func LoadCatalogs(fsys fs.FS, dir string) (map[string]Catalog, error) {
	result := make(map[string]Catalog)
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, name)))
		if err != nil {
			return nil, err
		}
		var c Catalog
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", name, err)
		}
		if c.Name == "" {
			c.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		result[c.Name] = c
	}
	return result, nil
}

// BuiltinCatalogs справочники, вшитые в бинарник.
func BuiltinCatalogs() (map[string]Catalog, error) {
	return LoadCatalogs(builtinCatalogs, "catalogs")
}

// LoadCatalogDir встроенные справочники, перекрытые файлами из dir (если задан).
func LoadCatalogDir(dir string) (map[string]Catalog, error) {
	out, err := BuiltinCatalogs()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return out, nil
	}
	extra, err := LoadCatalogs(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("catalogs %s: %w", dir, err)
	}
	for k, v := range extra {
		out[k] = v
	}
	return out, nil
}
