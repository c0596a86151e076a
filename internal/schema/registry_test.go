package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinRegistry(t *testing.T) {
	r, err := Builtin()
	require.NoError(t, err)

	assert.Equal(t, []string{"blogposts", "contenttypes", "resources", "startups", "users"}, r.Kinds())
	assert.Empty(t, r.Lint(), "builtin schemas must lint clean")

	s, ok := r.Lookup("startups")
	require.True(t, ok)
	assert.Equal(t, "Startup", s.Labels.Singular)
	assert.Equal(t, "featured", s.FeaturedField)
	assert.Equal(t, "founded", s.DateField)

	industry, ok := s.Field("industry")
	require.True(t, ok)
	assert.Equal(t, KindSelect, industry.Kind)
	assert.True(t, industry.Required)
	assert.Contains(t, industry.OptionValues(), "Fintech")

	stage, ok := s.Field("stage")
	require.True(t, ok)
	assert.Equal(t, []string{"Idea", "Pre-seed", "Seed", "Series A", "Series B", "Growth"}, stage.OptionValues())
	assert.Equal(t, "Seed", stage.Default)

	featured, ok := s.Field("featured")
	require.True(t, ok)
	assert.Equal(t, false, featured.Default)
}

func TestLookupNormalizesNames(t *testing.T) {
	r, err := Builtin()
	require.NoError(t, err)

	for _, name := range []string{"blogposts", "blog-posts", "Blog_Posts", "blogpost", " BLOGPOSTS "} {
		s, ok := r.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "blogposts", s.Kind)
	}
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestParseDSL(t *testing.T) {
	src := `
# comment
entity events: singular="Event" featured=highlight date=starts
  name: text required label="Event name" column sortable
  kind: select[Meetup, "Demo Day", Workshop] default=Meetup column
  starts: date column sortable
  seats: number min=1 max=500
  code: text pattern=^[A-Z]{3}$
  highlight: bool
  contact: email
`
	raws, err := parseDSL(strings.NewReader(src), "test.dsl")
	require.NoError(t, err)
	require.Len(t, raws, 1)

	s, err := build(raws[0], nil)
	require.NoError(t, err)

	assert.Equal(t, "events", s.Kind)
	assert.Equal(t, "Event", s.Labels.Singular)
	assert.Equal(t, "Events", s.Labels.Plural)
	assert.Equal(t, "highlight", s.FeaturedField)
	require.Len(t, s.Columns, 3)
	assert.Equal(t, "Event name", s.Columns[0].Label)
	assert.True(t, s.Columns[0].Sortable)
	assert.False(t, s.Columns[1].Sortable)

	kind, _ := s.Field("kind")
	assert.Equal(t, []string{"Meetup", "Demo Day", "Workshop"}, kind.OptionValues())

	seats, _ := s.Field("seats")
	require.NotNil(t, seats.Validator)
	assert.Error(t, seats.Validator(float64(0), nil))
	assert.NoError(t, seats.Validator(float64(20), nil))
	assert.Error(t, seats.Validator(float64(501), nil))

	code, _ := s.Field("code")
	assert.NoError(t, code.Validator("ABC", nil))
	assert.Error(t, code.Validator("abcd", nil))

	contact, _ := s.Field("contact")
	assert.Equal(t, KindText, contact.Kind)
	assert.Error(t, contact.Validator("not-an-email", nil))
	assert.NoError(t, contact.Validator("a@b.io", nil))
}

func TestParseDSLColumnsBlock(t *testing.T) {
	src := `entity notes:
  title: text
  body: text
  columns:
    id label="#" sortable
    title sortable
  pinned: boolean
`
	raws, err := parseDSL(strings.NewReader(src), "notes.dsl")
	require.NoError(t, err)
	s, err := build(raws[0], nil)
	require.NoError(t, err)

	require.Len(t, s.Columns, 2)
	assert.Equal(t, "id", s.Columns[0].Key)
	assert.Equal(t, "#", s.Columns[0].Label)
	assert.Equal(t, "Title", s.Columns[1].Label)
	assert.Len(t, s.Fields, 3, "field after columns block is still a field")
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown kind", "entity x:\n  a: color\n", "unknown field kind"},
		{"unknown catalog", "entity x:\n  a: select[@missing]\n", "unknown catalog"},
		{"bad default", "entity x:\n  a: number default=abc\n", "bad default"},
		{"bad pattern", "entity x:\n  a: text pattern=([\n", "bad pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raws, err := parseDSL(strings.NewReader(tt.src), "x.dsl")
			require.NoError(t, err)
			_, err = build(raws[0], map[string]Catalog{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOverlayDir(t *testing.T) {
	dir := t.TempDir()
	catDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.dsl"), []byte(
		"entity events:\n  name: text required column\n  city: select[@cities]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(catDir, "cities.yaml"), []byte(
		"items:\n  - { code: ber, name: Berlin, order: 2 }\n  - { code: ams, name: Amsterdam, order: 1 }\n"), 0o644))

	r, err := Load(dir, catDir)
	require.NoError(t, err)

	s, ok := r.Lookup("events")
	require.True(t, ok)
	city, _ := s.Field("city")
	assert.Equal(t, []string{"ams", "ber"}, city.OptionValues())
	assert.Contains(t, r.Kinds(), "startups", "builtin kinds stay registered")
}

func TestLintFindsProblems(t *testing.T) {
	s := &Schema{
		Kind:          "broken",
		FeaturedField: "title",
		DateField:     "missing",
		Fields: []Field{
			{Name: "title", Kind: KindText},
			{Name: "kind", Kind: KindSelect},
			{Name: "secret", Kind: KindHidden, Required: true},
		},
		Columns: []Column{{Key: "nope"}},
	}
	codes := map[string]bool{}
	for _, is := range s.Lint() {
		codes[is.Code] = true
	}
	for _, want := range []string{"featured_not_boolean", "date_unknown", "select_without_options", "required_hidden", "column_unknown"} {
		assert.True(t, codes[want], want)
	}
}
