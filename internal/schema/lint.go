package schema

import (
	"fmt"
	"sort"
)

// Issue противоречие в описании схемы.
type Issue struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Lint проверяет базовые противоречия в реестре.
func (r *Registry) Lint() []Issue {
	var issues []Issue
	for _, s := range r.Schemas() {
		issues = append(issues, s.Lint()...)
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Kind < issues[j].Kind })
	return issues
}

func (s *Schema) Lint() []Issue {
	var issues []Issue
	add := func(field, code, msg string) {
		issues = append(issues, Issue{Kind: s.Kind, Field: field, Code: code, Message: msg})
	}

	seen := map[string]bool{}
	for _, f := range s.Fields {
		if seen[f.Name] {
			add(f.Name, "duplicate_field", "field declared twice")
		}
		seen[f.Name] = true

		if (f.Kind == KindSelect || f.Kind == KindMultiSelect) && len(f.Options) == 0 {
			add(f.Name, "select_without_options", fmt.Sprintf("%s field has no options", f.Kind))
		}
		if f.Required && f.Kind == KindHidden {
			add(f.Name, "required_hidden", "hidden field cannot be required: nobody can fill it")
		}
		if f.Required && f.Kind == KindBoolean {
			add(f.Name, "required_boolean", "boolean field is never empty; required has no effect")
		}
	}

	if s.FeaturedField != "" {
		f, ok := s.Field(s.FeaturedField)
		switch {
		case !ok:
			add(s.FeaturedField, "featured_unknown", "featured field is not declared")
		case f.Kind != KindBoolean:
			add(f.Name, "featured_not_boolean", "featured field must be boolean")
		}
	}
	if s.DateField != "" {
		f, ok := s.Field(s.DateField)
		switch {
		case !ok:
			add(s.DateField, "date_unknown", "date field is not declared")
		case f.Kind != KindDate && f.Kind != KindText && f.Kind != KindHidden:
			add(f.Name, "date_not_date", "date field must be date-like")
		}
	}

	for _, c := range s.Columns {
		if c.Key == "id" {
			continue
		}
		if _, ok := s.Field(c.Key); !ok {
			add(c.Key, "column_unknown", "column is not backed by a field")
		}
	}
	if len(s.Columns) == 0 {
		add("", "no_columns", "entity has no table columns")
	}
	return issues
}
