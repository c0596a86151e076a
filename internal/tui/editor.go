package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"backoffice/internal/entity"
	"backoffice/internal/form"
	"backoffice/internal/schema"
)

// editor форма создания/редактирования: одно текстовое поле на атрибут.
// Файлы и скрытые поля в терминале не редактируются.
type editor struct {
	form   *form.Form
	fields []schema.Field
	inputs []textinput.Model
	orig   []string
	focus  int
}

func newEditor(s *schema.Schema, existing *entity.Entity, opts ...form.Option) *editor {
	ed := &editor{form: form.New(s, existing, opts...)}
	for _, fd := range s.Fields {
		if fd.Kind == schema.KindBlob || fd.Kind == schema.KindHidden {
			continue
		}
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = fd.Placeholder
		if fd.Kind == schema.KindSelect || fd.Kind == schema.KindMultiSelect {
			in.Placeholder = strings.Join(fd.OptionValues(), ", ")
		}
		in.CharLimit = 2000
		text := entity.Stringify(ed.form.Value(fd.Name))
		in.SetValue(text)
		ed.fields = append(ed.fields, fd)
		ed.inputs = append(ed.inputs, in)
		ed.orig = append(ed.orig, text)
	}
	if len(ed.inputs) > 0 {
		ed.inputs[0].Focus()
	}
	return ed
}

func (ed *editor) title() string {
	if e := ed.form.Existing(); e != nil {
		return "Edit " + ed.form.Schema().Labels.Singular + " #" + e.ID.Value
	}
	return "New " + ed.form.Schema().Labels.Singular
}

func (ed *editor) move(delta int) {
	if len(ed.inputs) == 0 {
		return
	}
	ed.inputs[ed.focus].Blur()
	ed.focus = (ed.focus + delta + len(ed.inputs)) % len(ed.inputs)
	ed.inputs[ed.focus].Focus()
}

func (ed *editor) update(msg tea.Msg) tea.Cmd {
	if len(ed.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	ed.inputs[ed.focus], cmd = ed.inputs[ed.focus].Update(msg)
	return cmd
}

// bind переносит в форму только отредактированные поля и проверяет её.
// Нетронутые поля не уходят в правку и не затирают чужие изменения.
func (ed *editor) bind() []form.FieldError {
	values := make(map[string]any, len(ed.fields))
	for i, fd := range ed.fields {
		raw := ed.inputs[i].Value()
		if raw == ed.orig[i] {
			continue
		}
		if fd.Kind == schema.KindMultiSelect {
			values[fd.Name] = splitList(raw)
			continue
		}
		values[fd.Name] = raw
	}
	if errs := ed.form.Bind(values); len(errs) > 0 {
		return errs
	}
	return ed.form.Validate()
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (ed *editor) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(ed.title()))
	b.WriteString("\n\n")

	errs := ed.form.Errors()
	for i, fd := range ed.fields {
		label := fd.Label
		if fd.Required {
			label += " *"
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(ed.inputs[i].View())
		b.WriteString("\n")
		if fe, ok := errs[fd.Name]; ok {
			b.WriteString(errorStyle.Render("  " + fe.Message))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(helpLine(keys.Tab, keys.BackTab, keys.Submit, keys.Back)))
	return b.String()
}
