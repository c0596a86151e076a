package table

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"backoffice/internal/entity"
	"backoffice/internal/schema"
)

// DefaultPageSize размер страницы, если владелец не задал свой.
const DefaultPageSize = 10

// State состояние списка, которым владеет вызывающая сторона.
type State struct {
	Term     string    `json:"q"`
	Sort     SortState `json:"-"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// ParseQuery разбирает параметры списка: q, sort, dir, page, page_size.
// sort=-name равносилен sort=name&dir=desc.
func ParseQuery(q url.Values) State {
	st := State{
		Term:     strings.TrimSpace(q.Get("q")),
		Page:     1,
		PageSize: DefaultPageSize,
	}

	if key := strings.TrimSpace(q.Get("sort")); key != "" {
		dir := Asc
		switch {
		case strings.HasPrefix(key, "-"):
			dir, key = Desc, strings.TrimPrefix(key, "-")
		case strings.HasPrefix(key, "+"):
			key = strings.TrimPrefix(key, "+")
		}
		if d := ParseDirection(q.Get("dir")); d != None {
			dir = d
		}
		if key != "" {
			st.Sort = SortState{Key: key, Dir: dir}
		}
	}

	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		st.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 && n <= 1000 {
		st.PageSize = n
	}
	return st
}

// Action действие над строкой.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Actions владелец таблицы: сама таблица строки не меняет.
type Actions interface {
	View(ctx context.Context, e entity.Entity) error
	Edit(ctx context.Context, e entity.Entity) error
	Delete(ctx context.Context, e entity.Entity) error
}

// View поиск → сортировка → страница, пересчитывается при каждом изменении.
type View struct {
	cols    []schema.Column
	items   []entity.Entity
	state   State
	actions Actions

	filtered []entity.Entity
	page     Page
}

func NewView(cols []schema.Column, items []entity.Entity, actions Actions) *View {
	v := &View{
		cols:    cols,
		items:   items,
		actions: actions,
		state:   State{Page: 1, PageSize: DefaultPageSize},
	}
	v.recompute()
	return v
}

func (v *View) recompute() {
	v.filtered = Sort(Filter(v.items, v.cols, v.state.Term), v.state.Sort)
	v.page = Paginate(len(v.filtered), v.state.PageSize, v.state.Page)
	v.state.Page = v.page.Current
}

// SetItems новая коллекция (после fetch или мутации).
func (v *View) SetItems(items []entity.Entity) {
	v.items = items
	v.recompute()
}

// SetTerm меняет строку поиска и возвращает на первую страницу.
func (v *View) SetTerm(term string) {
	v.state.Term = term
	v.state.Page = 1
	v.recompute()
}

// Click клик по заголовку колонки. Несортируемые колонки игнорируются.
func (v *View) Click(key string) {
	if c, ok := v.column(key); !ok || !c.Sortable {
		return
	}
	v.state.Sort.Click(key)
	v.recompute()
}

func (v *View) SetPage(n int) {
	v.state.Page = n
	v.recompute()
}

func (v *View) SetPageSize(n int) {
	v.state.PageSize = n
	v.state.Page = 1
	v.recompute()
}

// Apply заменяет состояние целиком (например, из ParseQuery).
func (v *View) Apply(st State) {
	v.state = st
	v.recompute()
}

func (v *View) State() State { return v.state }

func (v *View) Columns() []schema.Column { return v.cols }

// Filtered все записи после поиска и сортировки.
func (v *View) Filtered() []entity.Entity { return v.filtered }

func (v *View) Page() Page { return v.page }

// Rows записи текущей страницы.
func (v *View) Rows() []entity.Entity {
	lo, hi := v.page.Slice()
	return v.filtered[lo:hi]
}

func (v *View) column(key string) (schema.Column, bool) {
	for _, c := range v.cols {
		if c.Key == key {
			return c, true
		}
	}
	return schema.Column{}, false
}

// Do передаёт действие над строкой id владельцу.
func (v *View) Do(ctx context.Context, a Action, id string) error {
	if v.actions == nil {
		return errors.New("table has no actions")
	}
	var row *entity.Entity
	for i := range v.items {
		if v.items[i].ID.Value == id {
			row = &v.items[i]
			break
		}
	}
	if row == nil {
		return &entity.NotFoundError{ID: id}
	}
	switch a {
	case ActionView:
		return v.actions.View(ctx, *row)
	case ActionEdit:
		return v.actions.Edit(ctx, *row)
	case ActionDelete:
		return v.actions.Delete(ctx, *row)
	}
	return fmt.Errorf("unknown action %q", a)
}
