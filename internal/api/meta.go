package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/entity"
	"backoffice/internal/form"
	"backoffice/internal/schema"
)

// ===== META HANDLERS =====

type metaKindListItem struct {
	Kind     string `json:"kind"`
	Singular string `json:"singular"`
	Plural   string `json:"plural"`
	Count    int    `json:"count"`
	Degraded bool   `json:"degraded,omitempty"`
}

func (s *Server) metaList(c *gin.Context) {
	stores := s.set.Stores()
	out := make([]metaKindListItem, 0, len(stores))
	for _, st := range stores {
		sc := st.Schema()
		out = append(out, metaKindListItem{
			Kind:     sc.Kind,
			Singular: sc.Labels.Singular,
			Plural:   sc.Labels.Plural,
			Count:    st.Len(),
			Degraded: st.Degraded(),
		})
	}
	c.JSON(http.StatusOK, out)
}

type metaField struct {
	Name        string            `json:"name"`
	Label       string            `json:"label"`
	Kind        schema.Kind       `json:"kind"`
	Required    bool              `json:"required,omitempty"`
	Default     any               `json:"default,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Options     []schema.Option   `json:"options,omitempty"`
	Rules       map[string]string `json:"rules,omitempty"`
}

type metaColumn struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
}

type metaKind struct {
	Kind          string       `json:"kind"`
	Singular      string       `json:"singular"`
	Plural        string       `json:"plural"`
	FeaturedField string       `json:"featuredField,omitempty"`
	DateField     string       `json:"dateField,omitempty"`
	Fields        []metaField  `json:"fields"`
	Columns       []metaColumn `json:"columns"`
}

func describe(sc *schema.Schema) metaKind {
	fields := make([]metaField, 0, len(sc.Fields))
	for _, f := range sc.Fields {
		fields = append(fields, metaField{
			Name:        f.Name,
			Label:       f.Label,
			Kind:        f.Kind,
			Required:    f.Required,
			Default:     f.Default,
			Placeholder: f.Placeholder,
			Options:     append([]schema.Option(nil), f.Options...),
			Rules:       f.Rules,
		})
	}
	cols := make([]metaColumn, 0, len(sc.Columns))
	for _, col := range sc.Columns {
		cols = append(cols, metaColumn{Key: col.Key, Label: col.Label, Sortable: col.Sortable})
	}
	return metaKind{
		Kind:          sc.Kind,
		Singular:      sc.Labels.Singular,
		Plural:        sc.Labels.Plural,
		FeaturedField: sc.FeaturedField,
		DateField:     sc.DateField,
		Fields:        fields,
		Columns:       cols,
	}
}

// GET /api/meta/:kind
func (s *Server) metaKind(c *gin.Context) {
	sc, ok := s.set.Registry().Lookup(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
		return
	}
	c.JSON(http.StatusOK, describe(sc))
}

// GET /api/meta/:kind/form[?id=]: контролы формы создания или редактирования
func (s *Server) metaForm(c *gin.Context) {
	st, ok := s.set.Get(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
		return
	}
	var existing *entity.Entity
	if id := c.Query("id"); id != "" {
		e, ok := st.ByID(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		existing = &e
	}
	f := form.New(st.Schema(), existing)
	title := "New " + st.Schema().Labels.Singular
	if existing != nil {
		title = "Edit " + st.Schema().Labels.Singular
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":     st.Kind(),
		"title":    title,
		"controls": f.Controls(),
	})
}

func (s *Server) noticesList(c *gin.Context) {
	c.JSON(http.StatusOK, s.notices.List())
}
