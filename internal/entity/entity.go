package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Служебные ключи плоского JSON-представления.
const (
	KeyID          = "id"
	KeyProvisional = "_provisional"
)

// ID идентификатор записи. Серверный id непрозрачен; локально синтезированный
// помечен Provisional до сверки с сервером.
type ID struct {
	Value       string
	Provisional bool
}

func ServerID(v string) ID { return ID{Value: v} }

func ProvisionalID(n int64) ID {
	return ID{Value: strconv.FormatInt(n, 10), Provisional: true}
}

func (id ID) String() string { return id.Value }
func (id ID) IsZero() bool   { return id.Value == "" }

// Numeric возвращает числовое значение id, если оно есть.
func (id ID) Numeric() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id.Value), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Entity одна запись контента: id + плоская карта атрибутов.
type Entity struct {
	ID    ID
	Attrs map[string]any
}

func New(id ID, attrs map[string]any) Entity {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return Entity{ID: id, Attrs: attrs}
}

// Clone делает поверхностную копию атрибутов.
func (e Entity) Clone() Entity {
	attrs := make(map[string]any, len(e.Attrs))
	for k, v := range e.Attrs {
		attrs[k] = v
	}
	return Entity{ID: e.ID, Attrs: attrs}
}

// Merge возвращает копию с поверх наложенными attrs. Остальные поля сохраняются.
func (e Entity) Merge(attrs map[string]any) Entity {
	out := e.Clone()
	for k, v := range attrs {
		if k == KeyID || k == KeyProvisional {
			continue
		}
		out.Attrs[k] = v
	}
	return out
}

// Get читает атрибут; "id" отдаёт значение идентификатора.
func (e Entity) Get(name string) (any, bool) {
	if name == KeyID {
		return e.ID.Value, !e.ID.IsZero()
	}
	v, ok := e.Attrs[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (e Entity) Text(name string) string {
	v, ok := e.Get(name)
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Bool понимает true, "true"/"1"/"yes" и ненулевые числа.
func (e Entity) Bool(name string) bool {
	v, ok := e.Get(name)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return false
}

// Time разбирает дату из атрибута. ok=false для отсутствующих и нераспознанных.
func (e Entity) Time(name string) (time.Time, bool) {
	v, ok := e.Get(name)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseTime распознаёт time.Time и строки в поддерживаемых форматах.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// Stringify приводит значение атрибута к строке для поиска и отображения.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			parts = append(parts, Stringify(it))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ==== JSON ====

// MarshalJSON отдаёт плоский объект: {"id": ..., "_provisional": true, ...attrs}.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attrs)+2)
	for k, v := range e.Attrs {
		out[k] = v
	}
	out[KeyID] = e.ID.Value
	if e.ID.Provisional {
		out[KeyProvisional] = true
	} else {
		delete(out, KeyProvisional)
	}
	return json.Marshal(out)
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	id, err := idFromAny(raw[KeyID])
	if err != nil {
		return err
	}
	if p, ok := raw[KeyProvisional].(bool); ok && p {
		id.Provisional = true
	}
	delete(raw, KeyID)
	delete(raw, KeyProvisional)
	for k, v := range raw {
		raw[k] = normalizeNumber(v)
	}
	e.ID = id
	e.Attrs = raw
	return nil
}

// сервер может прислать id числом: храним строкой
func idFromAny(v any) (ID, error) {
	switch t := v.(type) {
	case nil:
		return ID{}, nil
	case string:
		return ServerID(t), nil
	case json.Number:
		return ServerID(t.String()), nil
	case float64:
		return ServerID(strconv.FormatFloat(t, 'f', -1, 64)), nil
	default:
		return ID{}, fmt.Errorf("unsupported id type %T", v)
	}
}

// json.Number → float64 (как у encoding/json по умолчанию), вложенные массивы тоже.
func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumber(t[k])
		}
		return t
	}
	return v
}

// MaxNumericID максимальный числовой id в наборе (0, если таких нет).
func MaxNumericID(items []Entity) int64 {
	var max int64
	for _, it := range items {
		if n, ok := it.ID.Numeric(); ok && n > max {
			max = n
		}
	}
	return max
}
