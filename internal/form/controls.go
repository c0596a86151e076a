package form

import (
	"backoffice/internal/entity"
	"backoffice/internal/schema"
)

// Control модель представления одного поля для HTML/JSON/TUI.
type Control struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Kind        schema.Kind     `json:"kind"`
	Value       any             `json:"value"`
	Required    bool            `json:"required"`
	Placeholder string          `json:"placeholder,omitempty"`
	Options     []schema.Option `json:"options,omitempty"`
	Error       string          `json:"error,omitempty"`
	Preview     string          `json:"preview,omitempty"`
}

// Controls поля в порядке схемы, со значениями и ошибками последней проверки.
func (f *Form) Controls() []Control {
	out := make([]Control, 0, len(f.schema.Fields))
	for _, fd := range f.schema.Fields {
		c := Control{
			Name:        fd.Name,
			Label:       fd.Label,
			Kind:        fd.Kind,
			Value:       f.values[fd.Name],
			Required:    fd.Required,
			Placeholder: fd.Placeholder,
			Options:     fd.Options,
		}
		if fe, ok := f.errs[fd.Name]; ok {
			c.Error = fe.Message
		}
		if fd.Kind == schema.KindBlob {
			if h, ok := f.blobs[fd.Name]; ok {
				c.Preview = h.Preview
			} else {
				c.Preview = entity.Stringify(f.values[fd.Name])
			}
		}
		out = append(out, c)
	}
	return out
}
