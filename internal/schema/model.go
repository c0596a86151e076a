package schema

import "backoffice/internal/entity"

// Validator пользовательская проверка поля. Ненулевая ошибка становится сообщением поля.
type Validator func(value any, all map[string]any) error

// Coercer приводит значение из формы к сетевому виду.
type Coercer func(value any) (any, error)

// Option значение select/multiselect.
type Option struct {
	Value string `json:"value" yaml:"code"`
	Label string `json:"label" yaml:"name"`
}

// Field описывает одно редактируемое поле сущности.
type Field struct {
	Name        string
	Label       string
	Kind        Kind
	Required    bool
	Default     any
	Validator   Validator
	Options     []Option
	Placeholder string
	Coerce      Coercer

	// Rules исходные опции DSL (pattern, min, max ...), нужны для /meta
	Rules map[string]string
}

// Column одна отображаемая проекция сущности в таблице.
type Column struct {
	Key      string
	Label    string
	Sortable bool
	Render   func(e entity.Entity) string
}

// Value значение колонки для записи. Render влияет только на отображение.
func (c Column) Value(e entity.Entity) (any, bool) {
	return e.Get(c.Key)
}

// Display строка для ячейки таблицы.
func (c Column) Display(e entity.Entity) string {
	if c.Render != nil {
		return c.Render(e)
	}
	return e.Text(c.Key)
}

type Labels struct {
	Singular string
	Plural   string
}

// Schema поля, колонки и подписи одного вида сущностей.
type Schema struct {
	Kind          string
	Labels        Labels
	Fields        []Field
	Columns       []Column
	FeaturedField string
	DateField     string
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames в порядке схемы.
func (s *Schema) FieldNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// OptionValues значения опций без подписей.
func (f Field) OptionValues() []string {
	out := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		out = append(out, o.Value)
	}
	return out
}
