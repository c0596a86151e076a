// Package table проекция коллекции для списка: поиск, сортировка по одной
// колонке и пагинация. Всё синхронно и без побочных эффектов.
package table

import (
	"sort"
	"strings"
	"time"

	"backoffice/internal/entity"
	"backoffice/internal/schema"
)

// ==== Поиск ====

// Filter оставляет записи, у которых хотя бы одна колонка содержит term
// (без учёта регистра и пробелов по краям). Пустой term пропускает всё.
func Filter(items []entity.Entity, cols []schema.Column, term string) []entity.Entity {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return items
	}
	out := make([]entity.Entity, 0, len(items))
	for _, e := range items {
		if matches(e, cols, needle) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e entity.Entity, cols []schema.Column, needle string) bool {
	for _, c := range cols {
		v, ok := c.Value(e)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(entity.Stringify(v)), needle) {
			return true
		}
	}
	return false
}

// ==== Сортировка ====

type Direction int

const (
	None Direction = iota
	Asc
	Desc
)

func (d Direction) String() string {
	switch d {
	case Asc:
		return "asc"
	case Desc:
		return "desc"
	}
	return ""
}

// ParseDirection "asc"/"desc" (регистр не важен), остальное None.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc
	case "desc":
		return Desc
	}
	return None
}

// SortState текущая сортировка. Нулевое значение: без сортировки.
type SortState struct {
	Key string
	Dir Direction
}

// Active есть ли сортировка.
func (s SortState) Active() bool { return s.Key != "" && s.Dir != None }

// Click переключает состояние по клику на заголовок: по той же колонке
// none → asc → desc → none, другая колонка начинает с asc.
func (s *SortState) Click(key string) {
	if key != s.Key {
		s.Key, s.Dir = key, Asc
		return
	}
	switch s.Dir {
	case None:
		s.Dir = Asc
	case Asc:
		s.Dir = Desc
	default:
		s.Key, s.Dir = "", None
	}
}

// Sort возвращает отсортированную копию. Записи без значения всегда в конце,
// независимо от направления. Без сортировки порядок не меняется.
func Sort(items []entity.Entity, st SortState) []entity.Entity {
	out := make([]entity.Entity, len(items))
	copy(out, items)
	if !st.Active() {
		return out
	}
	desc := st.Dir == Desc
	sort.SliceStable(out, func(i, j int) bool {
		return cmpByKey(out[i], out[j], st.Key, desc) < 0
	})
	return out
}

// сравнение двух записей по одному ключу; null всегда после значения
func cmpByKey(a, b entity.Entity, key string, desc bool) int {
	va, oka := a.Get(key)
	vb, okb := b.Get(key)

	if !oka && !okb {
		return 0
	}
	if oka != okb {
		if !oka {
			return +1
		}
		return -1
	}

	rel := Compare(va, vb)
	if desc {
		rel = -rel
	}
	return rel
}

// Compare естественный порядок двух непустых значений: числа по величине,
// даты хронологически, false < true, строки лексикографически.
// Разнотипные значения сравниваются как строки.
func Compare(a, b any) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return cmp3(x < y, x > y)
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			return cmp3(!x && y, x && !y)
		}
	}
	if x, ok := date(a); ok {
		if y, ok := date(b); ok {
			return x.Compare(y)
		}
	}
	sa, sb := entity.Stringify(a), entity.Stringify(b)
	return cmp3(sa < sb, sa > sb)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return +1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// только похожие на дату строки: "2024-01-01", RFC3339 и time.Time
func date(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if len(s) < len("2006-01-02") || s[4] != '-' {
			return time.Time{}, false
		}
		return entity.ParseTime(s)
	}
	return time.Time{}, false
}
