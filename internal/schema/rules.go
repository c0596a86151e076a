package schema

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"backoffice/internal/entity"
)

// опции DSL, которые превращаются в проверки
var ruleKeys = []string{"pattern", "min", "max", "maxlen", "minlen", "email", "url"}

// compileRules собирает Validator из опций поля. nil, если проверок нет.
func compileRules(f Field, opts map[string]string) (Validator, error) {
	var checks []Validator

	if p, ok := opts["pattern"]; ok && p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("field %s: bad pattern: %w", f.Name, err)
		}
		checks = append(checks, func(v any, _ map[string]any) error {
			if s := entity.Stringify(v); s != "" && !re.MatchString(s) {
				return fmt.Errorf("%s has an invalid format", f.Label)
			}
			return nil
		})
	}

	for _, key := range []string{"min", "max"} {
		raw, ok := opts[key]
		if !ok {
			continue
		}
		bound, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %s must be a number", f.Name, key)
		}
		isMin := key == "min"
		checks = append(checks, func(v any, _ map[string]any) error {
			n, err := toNumber(v)
			if err != nil || n == nil {
				return nil // тип проверяет коэрсия
			}
			x := n.(float64)
			if isMin && x < bound {
				return fmt.Errorf("%s must be at least %s", f.Label, raw)
			}
			if !isMin && x > bound {
				return fmt.Errorf("%s must be at most %s", f.Label, raw)
			}
			return nil
		})
	}

	for _, key := range []string{"minlen", "maxlen"} {
		raw, ok := opts[key]
		if !ok {
			continue
		}
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("field %s: %s must be a non-negative integer", f.Name, key)
		}
		isMin := key == "minlen"
		checks = append(checks, func(v any, _ map[string]any) error {
			s := entity.Stringify(v)
			if s == "" {
				return nil
			}
			n := utf8.RuneCountInString(s)
			if isMin && n < limit {
				return fmt.Errorf("%s must be at least %d characters", f.Label, limit)
			}
			if !isMin && n > limit {
				return fmt.Errorf("%s must be at most %d characters", f.Label, limit)
			}
			return nil
		})
	}

	if strings.EqualFold(opts["email"], "true") {
		checks = append(checks, func(v any, _ map[string]any) error {
			s := strings.TrimSpace(entity.Stringify(v))
			if s == "" {
				return nil
			}
			if _, err := mail.ParseAddress(s); err != nil || strings.ContainsAny(s, "<> ") {
				return errors.New("Invalid email address")
			}
			return nil
		})
	}

	if strings.EqualFold(opts["url"], "true") {
		checks = append(checks, func(v any, _ map[string]any) error {
			s := strings.TrimSpace(entity.Stringify(v))
			if s == "" {
				return nil
			}
			u, err := url.Parse(s)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				return errors.New("Invalid URL")
			}
			return nil
		})
	}

	if len(checks) == 0 {
		return nil, nil
	}
	return func(v any, all map[string]any) error {
		for _, c := range checks {
			if err := c(v, all); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
