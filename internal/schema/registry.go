package schema

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed builtin/*.dsl
var builtinDSL embed.FS

// Registry статическое отображение вид сущности → схема.
// Новый вид сущностей: это новая запись реестра, без нового кода движков.
type Registry struct {
	schemas  map[string]*Schema
	order    []string
	catalogs map[string]Catalog
}

// NewRegistry собирает реестр из готовых схем.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema), catalogs: map[string]Catalog{}}
	for _, s := range schemas {
		if err := r.add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(s *Schema) error {
	if s == nil || s.Kind == "" {
		return fmt.Errorf("schema without kind")
	}
	key := normalizeKind(s.Kind)
	if _, exists := r.schemas[key]; exists {
		return fmt.Errorf("duplicate entity kind %q", s.Kind)
	}
	r.schemas[key] = s
	r.order = append(r.order, key)
	return nil
}

// put добавляет или заменяет схему (оверлей из каталога поверх встроенных).
func (r *Registry) put(s *Schema) {
	key := normalizeKind(s.Kind)
	if _, exists := r.schemas[key]; !exists {
		r.order = append(r.order, key)
	}
	r.schemas[key] = s
}

// Lookup ищет схему по имени вида: регистронезависимо, "blog-posts" == "blogposts",
// единственное число тоже подходит ("startup" → "startups").
func (r *Registry) Lookup(name string) (*Schema, bool) {
	key := normalizeKind(name)
	if key == "" {
		return nil, false
	}
	if s, ok := r.schemas[key]; ok {
		return s, true
	}
	if s, ok := r.schemas[key+"s"]; ok {
		return s, true
	}
	return nil, false
}

// Kinds в порядке объявления.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.schemas[k].Kind)
	}
	return out
}

func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.schemas[k])
	}
	return out
}

func (r *Registry) Catalogs() map[string]Catalog { return r.catalogs }

func normalizeKind(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
}

// ==== Загрузка ====

// Builtin реестр из вшитых DSL и справочников.
func Builtin() (*Registry, error) {
	return Load("", "")
}

// Load встроенный реестр, перекрытый *.dsl из dslDir и *.yaml из catalogDir.
// Пустые пути: только встроенное.
func Load(dslDir, catalogDir string) (*Registry, error) {
	catalogs, err := LoadCatalogDir(catalogDir)
	if err != nil {
		return nil, err
	}

	raws, err := readDSL(builtinDSL, "builtin")
	if err != nil {
		return nil, err
	}
	r := &Registry{schemas: make(map[string]*Schema), catalogs: catalogs}
	for _, raw := range raws {
		s, err := build(raw, catalogs)
		if err != nil {
			return nil, err
		}
		if err := r.add(s); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.Source, err)
		}
	}

	if strings.TrimSpace(dslDir) != "" {
		extra, err := readDSL(os.DirFS(dslDir), ".")
		if err != nil {
			return nil, fmt.Errorf("schema dir %s: %w", dslDir, err)
		}
		for _, raw := range extra {
			s, err := build(raw, catalogs)
			if err != nil {
				return nil, err
			}
			r.put(s)
		}
	}
	return r, nil
}

// readDSL проходит по дереву и парсит все *.dsl в стабильном порядке.
func readDSL(fsys fs.FS, root string) ([]*rawEntity, error) {
	var paths []string
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*rawEntity
	seen := map[string]string{}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, err
		}
		ents, err := parseDSL(bytes.NewReader(data), p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		for _, e := range ents {
			key := normalizeKind(e.Kind)
			if prev, dup := seen[key]; dup {
				return nil, fmt.Errorf("duplicate entity %q (%s and %s)", e.Kind, prev, e.Source)
			}
			seen[key] = e.Source
			out = append(out, e)
		}
	}
	return out, nil
}

// build разрешает виды полей, справочники, дефолты и проверки: один раз на схему.
func build(raw *rawEntity, catalogs map[string]Catalog) (*Schema, error) {
	s := &Schema{
		Kind: raw.Kind,
		Labels: Labels{
			Singular: raw.Opts["singular"],
			Plural:   raw.Opts["plural"],
		},
		FeaturedField: raw.Opts["featured"],
		DateField:     raw.Opts["date"],
	}
	if s.Labels.Plural == "" {
		s.Labels.Plural = titleCase(raw.Kind)
	}
	if s.Labels.Singular == "" {
		s.Labels.Singular = strings.TrimSuffix(s.Labels.Plural, "s")
	}

	for _, rf := range raw.Fields {
		kind, err := ParseKind(rf.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %s.%s: %w", raw.Source, raw.Kind, rf.Name, err)
		}
		f := Field{
			Name:        rf.Name,
			Label:       rf.Opts["label"],
			Kind:        kind,
			Required:    strings.EqualFold(rf.Opts["required"], "true"),
			Placeholder: rf.Opts["placeholder"],
			Rules:       pickRules(rf.Opts),
		}
		if f.Label == "" {
			f.Label = titleCase(rf.Name)
		}

		switch {
		case rf.Catalog != "":
			c, ok := catalogs[rf.Catalog]
			if !ok {
				return nil, fmt.Errorf("%s: %s.%s: unknown catalog %q", raw.Source, raw.Kind, rf.Name, rf.Catalog)
			}
			f.Options = c.Options()
		case len(rf.Choices) > 0:
			for _, ch := range rf.Choices {
				f.Options = append(f.Options, Option{Value: ch, Label: ch})
			}
		}

		f.Coerce = coercerFor(f)
		if def, ok := rf.Opts["default"]; ok {
			v, err := f.Coerce(def)
			if err != nil {
				return nil, fmt.Errorf("%s: %s.%s: bad default: %w", raw.Source, raw.Kind, rf.Name, err)
			}
			f.Default = v
		}
		v, err := compileRules(f, rf.Opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", raw.Source, raw.Kind, err)
		}
		f.Validator = v
		s.Fields = append(s.Fields, f)

		if len(raw.Columns) == 0 && strings.EqualFold(rf.Opts["column"], "true") {
			s.Columns = append(s.Columns, Column{
				Key:      f.Name,
				Label:    firstNonEmpty(rf.Opts["column_label"], f.Label),
				Sortable: strings.EqualFold(rf.Opts["sortable"], "true"),
			})
		}
	}

	for _, rc := range raw.Columns {
		label := rc.Opts["label"]
		if label == "" {
			if f, ok := s.Field(rc.Key); ok {
				label = f.Label
			} else {
				label = titleCase(rc.Key)
			}
		}
		s.Columns = append(s.Columns, Column{
			Key:      rc.Key,
			Label:    label,
			Sortable: strings.EqualFold(rc.Opts["sortable"], "true"),
		})
	}

	if s.FeaturedField == "" {
		if _, ok := s.Field("featured"); ok {
			s.FeaturedField = "featured"
		}
	}
	return s, nil
}

func pickRules(opts map[string]string) map[string]string {
	out := map[string]string{}
	for _, k := range ruleKeys {
		if v, ok := opts[k]; ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func titleCase(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
