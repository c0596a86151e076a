// Package tui терминальный просмотр одного вида сущностей: поиск, сортировка
// по колонкам, страницы, форма редактирования и удаление выбранной строки.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"backoffice/internal/entity"
	"backoffice/internal/form"
	"backoffice/internal/store"
	"backoffice/internal/syncer"
	"backoffice/internal/table"
)

const maxCellWidth = 24

type mode int

const (
	modeList mode = iota
	modeSearch
	modeDetail
	modeConfirm
	modeForm
)

// Notices источник последних уведомлений синхронизации.
type Notices interface {
	List() []syncer.Notice
}

type refreshedMsg struct{ err error }

type removedMsg struct {
	res store.RemoveResult
	err error
}

type savedMsg struct {
	env entity.Envelope
	err error
}

// Model экран списка. Сам таблицу не меняет: действия над строкой приходят
// через table.Actions и выполняются командами.
type Model struct {
	ctx     context.Context
	st      *store.Store
	view    *table.View
	search  textinput.Model
	notices Notices
	formOpt []form.Option

	mode     mode
	cursor   int
	selected entity.Entity
	editor   *editor

	status    string
	statusErr bool
}

type Option func(*Model)

func WithNotices(n Notices) Option { return func(m *Model) { m.notices = n } }

func WithPageSize(n int) Option { return func(m *Model) { m.view.SetPageSize(n) } }

func WithFormOptions(opts ...form.Option) Option {
	return func(m *Model) { m.formOpt = append(m.formOpt, opts...) }
}

func New(ctx context.Context, st *store.Store, opts ...Option) *Model {
	in := textinput.New()
	in.Placeholder = "Search..."
	in.Prompt = "/ "

	m := &Model{ctx: ctx, st: st, search: in}
	m.view = table.NewView(st.Schema().Columns, st.All(), rowActions{m})
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Model) Init() tea.Cmd { return m.refresh() }

// ==== Действия над строкой ====

// rowActions переключают экран; сами мутации идут командами.
type rowActions struct{ m *Model }

func (a rowActions) View(_ context.Context, e entity.Entity) error {
	a.m.selected = e
	a.m.mode = modeDetail
	return nil
}

func (a rowActions) Edit(_ context.Context, e entity.Entity) error {
	a.m.editor = newEditor(a.m.st.Schema(), &e, a.m.formOpt...)
	a.m.mode = modeForm
	return nil
}

func (a rowActions) Delete(_ context.Context, e entity.Entity) error {
	a.m.selected = e
	a.m.mode = modeConfirm
	return nil
}

// ==== Команды ====

func (m *Model) refresh() tea.Cmd {
	ctx, st := m.ctx, m.st
	return func() tea.Msg {
		_, err := st.FetchAll(ctx)
		return refreshedMsg{err: err}
	}
}

func (m *Model) remove(id string) tea.Cmd {
	ctx, st := m.ctx, m.st
	return func() tea.Msg {
		res, err := st.Remove(ctx, id)
		return removedMsg{res: res, err: err}
	}
}

func (m *Model) save(ed *editor) tea.Cmd {
	ctx, st := m.ctx, m.st
	return func() tea.Msg {
		var env entity.Envelope
		err := ed.form.Submit(ctx, func(ctx context.Context, attrs map[string]any) error {
			var err error
			if e := ed.form.Existing(); e != nil {
				env, err = st.Edit(ctx, e.ID.Value, attrs)
			} else {
				env, err = st.Add(ctx, attrs)
			}
			return err
		})
		return savedMsg{env: env, err: err}
	}
}

// ==== Update ====

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshedMsg:
		m.reload()
		switch {
		case msg.err != nil:
			m.setError(msg.err)
		case m.st.Degraded():
			m.setStatus(syncer.MsgServedFromMirror)
		default:
			m.setStatus(fmt.Sprintf("Loaded %d %s", m.st.Len(), strings.ToLower(m.st.Schema().Labels.Plural)))
		}
		return m, nil

	case removedMsg:
		m.mode = modeList
		m.reload()
		if msg.err != nil {
			m.setError(errors.New(msg.res.Message))
		} else {
			m.setStatus(msg.res.Message)
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			var ve *form.ValidationError
			if errors.As(msg.err, &ve) {
				return m, nil
			}
			m.setError(msg.err)
			return m, nil
		}
		m.mode = modeList
		m.editor = nil
		m.reload()
		if msg.env.Outcome == entity.LocalFallback {
			m.setStatus(syncer.MsgSavedLocally)
		} else {
			m.setStatus(m.st.Schema().Labels.Singular + " saved")
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeDetail:
			if key.Matches(msg, keys.Back, keys.Open, keys.Quit) {
				m.mode = modeList
			}
			return m, nil
		case modeConfirm:
			if key.Matches(msg, keys.Confirm) {
				return m, m.remove(m.selected.ID.Value)
			}
			m.mode = modeList
			return m, nil
		case modeForm:
			return m.updateForm(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Search):
		m.mode = modeSearch
		return m, m.search.Focus()
	case key.Matches(msg, keys.Back):
		if m.view.State().Term != "" {
			m.search.SetValue("")
			m.view.SetTerm("")
			m.cursor = 0
		}
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.view.Rows())-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Prev):
		m.view.SetPage(m.view.Page().Current - 1)
		m.cursor = 0
	case key.Matches(msg, keys.Next):
		m.view.SetPage(m.view.Page().Current + 1)
		m.cursor = 0
	case key.Matches(msg, keys.Refresh):
		m.setStatus("Refreshing...")
		return m, m.refresh()
	case key.Matches(msg, keys.New):
		m.editor = newEditor(m.st.Schema(), nil, m.formOpt...)
		m.mode = modeForm
	case key.Matches(msg, keys.Open):
		m.act(table.ActionView)
	case key.Matches(msg, keys.Edit):
		m.act(table.ActionEdit)
	case key.Matches(msg, keys.Delete):
		m.act(table.ActionDelete)
	default:
		// 1..9: клик по заголовку колонки
		if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(m.view.Columns()) {
			m.view.Click(m.view.Columns()[n-1].Key)
			m.cursor = 0
		}
	}
	return m, nil
}

func (m *Model) act(a table.Action) {
	e, ok := m.current()
	if !ok {
		return
	}
	if err := m.view.Do(m.ctx, a, e.ID.Value); err != nil {
		m.setError(err)
	}
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Back, keys.Open) {
		m.mode = modeList
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.view.SetTerm(m.search.Value())
	m.cursor = 0
	return m, cmd
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ed := m.editor
	switch {
	case key.Matches(msg, keys.Back):
		m.editor = nil
		m.mode = modeList
		return m, nil
	case key.Matches(msg, keys.Submit):
		if errs := ed.bind(); len(errs) > 0 {
			m.setError(fmt.Errorf("%d field(s) need attention", len(errs)))
			return m, nil
		}
		return m, m.save(ed)
	case key.Matches(msg, keys.Tab):
		ed.move(1)
		return m, nil
	case key.Matches(msg, keys.BackTab):
		ed.move(-1)
		return m, nil
	}
	return m, ed.update(msg)
}

func (m *Model) reload() {
	m.view.SetItems(m.st.All())
	if rows := len(m.view.Rows()); m.cursor >= rows {
		m.cursor = max(rows-1, 0)
	}
}

func (m *Model) current() (entity.Entity, bool) {
	rows := m.view.Rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return entity.Entity{}, false
	}
	return rows[m.cursor], true
}

func (m *Model) setStatus(s string) { m.status, m.statusErr = s, false }
func (m *Model) setError(err error) { m.status, m.statusErr = err.Error(), true }

// ==== View ====

func (m *Model) View() string {
	var b strings.Builder
	switch m.mode {
	case modeForm:
		b.WriteString(m.editor.view())
	case modeDetail:
		b.WriteString(m.detailView())
	default:
		b.WriteString(m.listView())
	}
	b.WriteString("\n")
	b.WriteString(m.footer())
	return appStyle.Render(b.String())
}

func (m *Model) listView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.st.Schema().Labels.Plural))
	b.WriteString("\n\n")

	if m.mode == modeSearch || m.view.State().Term != "" {
		b.WriteString(searchStyle.Render(m.search.View()))
		b.WriteString("\n")
	}

	cols := m.view.Columns()
	rows := m.view.Rows()
	widths := make([]int, len(cols))
	headers := make([]string, len(cols))
	sortState := m.view.State().Sort
	for i, c := range cols {
		h := strconv.Itoa(i+1) + " " + c.Label
		if sortState.Active() && sortState.Key == c.Key {
			h += map[table.Direction]string{table.Asc: " ▲", table.Desc: " ▼"}[sortState.Dir]
		}
		headers[i] = h
		widths[i] = lipgloss.Width(h)
		for _, e := range rows {
			widths[i] = max(widths[i], min(lipgloss.Width(c.Display(e)), maxCellWidth))
		}
	}

	cells := make([]string, len(cols))
	for i := range cols {
		cells[i] = pad(headers[i], widths[i])
	}
	b.WriteString(headerStyle.Render(strings.Join(cells, "  ")))
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString(mutedStyle.Render("No records"))
		b.WriteString("\n")
	}
	for r, e := range rows {
		for i, c := range cols {
			cells[i] = pad(c.Display(e), widths[i])
		}
		line := strings.Join(cells, "  ")
		if e.ID.Provisional {
			line += " " + noticeStyle.Render("(local)")
		}
		if r == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(pagerLine(m.view.Page())))
	b.WriteString("\n")

	if m.mode == modeConfirm {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Delete %s #%s? (y/n)", m.st.Schema().Labels.Singular, m.selected.ID.Value)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) detailView() string {
	var b strings.Builder
	sc := m.st.Schema()
	b.WriteString(titleStyle.Render(sc.Labels.Singular + " #" + m.selected.ID.Value))
	b.WriteString("\n\n")
	for _, fd := range sc.Fields {
		v, _ := m.selected.Get(fd.Name)
		b.WriteString(labelStyle.Render(fd.Label))
		b.WriteString(entity.Stringify(v))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) footer() string {
	var b strings.Builder
	if m.status != "" {
		if m.statusErr {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(statusStyle.Render(m.status))
		}
		b.WriteString("\n")
	}
	if m.notices != nil {
		if list := m.notices.List(); len(list) > 0 {
			b.WriteString(noticeStyle.Render("! " + list[len(list)-1].Message))
			b.WriteString("\n")
		}
	}
	if m.mode == modeList {
		b.WriteString(mutedStyle.Render(helpLine(keys.Search, keys.Prev, keys.Next, keys.Open, keys.Edit, keys.New, keys.Delete, keys.Refresh, keys.Quit)))
	}
	return b.String()
}

// pagerLine "Page 2/7 · 11-20 of 64 · « 1 … 3 4 [5] 6 7 … 12 »"
func pagerLine(p table.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d/%d · %d-%d of %d ·", p.Current, p.TotalPages, p.StartItem, p.EndItem, p.Total)
	if p.ShowFirst {
		b.WriteString(" 1 …")
	}
	for _, n := range p.Pages {
		if n == p.Current {
			fmt.Fprintf(&b, " [%d]", n)
		} else {
			fmt.Fprintf(&b, " %d", n)
		}
	}
	if p.ShowLast {
		fmt.Fprintf(&b, " … %d", p.TotalPages)
	}
	return b.String()
}

func pad(s string, w int) string {
	if lipgloss.Width(s) > w {
		r := []rune(s)
		for len(r) > 0 && lipgloss.Width(string(r)) > w-1 {
			r = r[:len(r)-1]
		}
		return string(r) + "…"
	}
	return s + strings.Repeat(" ", w-lipgloss.Width(s))
}
