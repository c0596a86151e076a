package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/entity"
)

// Kind закрытый набор видов полей. Разрешается один раз при сборке реестра.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindDate
	KindBoolean
	KindSelect
	KindMultiSelect
	KindBlob
	KindHidden
)

var kindNames = map[Kind]string{
	KindText:        "text",
	KindNumber:      "number",
	KindDate:        "date",
	KindBoolean:     "boolean",
	KindSelect:      "select",
	KindMultiSelect: "multiselect",
	KindBlob:        "blob",
	KindHidden:      "hidden",
}

// синонимы из старых DSL (string/int/enum/array ...)
var kindAliases = map[string]Kind{
	"text": KindText, "string": KindText, "textarea": KindText, "email": KindText, "url": KindText,
	"number": KindNumber, "int": KindNumber, "float": KindNumber,
	"date": KindDate, "datetime": KindDate,
	"boolean": KindBoolean, "bool": KindBoolean, "checkbox": KindBoolean,
	"select": KindSelect, "enum": KindSelect,
	"multiselect": KindMultiSelect, "multi-select": KindMultiSelect, "array": KindMultiSelect, "tags": KindMultiSelect,
	"blob": KindBlob, "file": KindBlob, "image": KindBlob,
	"hidden": KindHidden,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseKind разбирает имя вида поля; неизвестное имя: ошибка загрузки схемы.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown field kind %q", s)
}

// ZeroValue значение по умолчанию для вида: false для boolean, "" для остальных.
func (k Kind) ZeroValue() any {
	if k == KindBoolean {
		return false
	}
	return ""
}

// Empty пустое ли значение с точки зрения required.
func Empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// ==== Коэрсия значений формы ====

// coercerFor строит функцию приведения для поля (вызывается при сборке реестра).
func coercerFor(f Field) Coercer {
	switch f.Kind {
	case KindText:
		return toText
	case KindNumber:
		return toNumber
	case KindDate:
		return toDate
	case KindBoolean:
		return toBool
	case KindSelect:
		allowed := f.OptionValues()
		return func(v any) (any, error) { return toChoice(v, allowed) }
	case KindMultiSelect:
		allowed := f.OptionValues()
		return func(v any) (any, error) { return toChoices(v, allowed) }
	case KindBlob:
		return toText
	default:
		return func(v any) (any, error) { return v, nil }
	}
}

func toText(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool, float64, float32, int, int64, json.Number:
		return entity.Stringify(t), nil
	default:
		return nil, errors.New("must be text")
	}
}

func toNumber(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, errors.New("must be a number")
		}
		return f, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.New("must be a number")
		}
		return f, nil
	default:
		return nil, errors.New("must be a number")
	}
}

func toDate(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return t.Format("2006-01-02"), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if _, ok := entity.ParseTime(s); !ok {
			return nil, errors.New("must be a date (YYYY-MM-DD)")
		}
		return s, nil
	default:
		return nil, errors.New("must be a date (YYYY-MM-DD)")
	}
}

func toBool(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off", "":
			return false, nil
		}
	case float64:
		return t != 0, nil
	case int:
		return t != 0, nil
	}
	return nil, errors.New("must be boolean")
}

func toChoice(v any, allowed []string) (any, error) {
	s, err := toText(v)
	if err != nil {
		return nil, err
	}
	str := strings.TrimSpace(s.(string))
	if str == "" || len(allowed) == 0 {
		return str, nil
	}
	for _, a := range allowed {
		if a == str {
			return str, nil
		}
	}
	return nil, fmt.Errorf("value %q is not allowed", str)
}

func toChoices(v any, allowed []string) (any, error) {
	var raw []string
	switch t := v.(type) {
	case nil:
	case []string:
		raw = append(raw, t...)
	case []any:
		for _, it := range t {
			raw = append(raw, entity.Stringify(it))
		}
	case string:
		// CSV для простоты: "a,b,c"
		raw = strings.Split(t, ",")
	default:
		return nil, errors.New("must be a list")
	}
	out := make([]string, 0, len(raw))
	for i, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, err := toChoice(r, allowed); err != nil {
			return nil, fmt.Errorf("item %d: %v", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
