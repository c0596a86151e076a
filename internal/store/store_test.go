package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/entity"
	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/remotestub"
	"backoffice/internal/schema"
	"backoffice/internal/seed"
	"backoffice/internal/syncer"
)

func builtin(t *testing.T, kind string) *schema.Schema {
	t.Helper()
	reg, err := schema.Builtin()
	require.NoError(t, err)
	s, ok := reg.Lookup(kind)
	require.True(t, ok)
	return s
}

func withItems(t *testing.T, items ...entity.Entity) (*Store, *remote.Faulty, *mirror.Memory) {
	t.Helper()
	stub := remotestub.NewStorage()
	stub.Seed("startups", items...)
	faulty := remote.NewFaulty(stub)
	m := mirror.NewMemory()
	st := New(context.Background(), builtin(t, "startups"), faulty, m,
		WithPolicyOptions(syncer.WithSeed(seed.Static{})))
	_, err := st.FetchAll(context.Background())
	require.NoError(t, err)
	return st, faulty, m
}

func e(id string, attrs map[string]any) entity.Entity {
	return entity.New(entity.ServerID(id), attrs)
}

func ids(items []entity.Entity) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID.Value)
	}
	return out
}

func TestNewHydratesFromMirror(t *testing.T) {
	m := mirror.NewMemory()
	require.NoError(t, m.Save(context.Background(), mirror.Key("startups"), []entity.Entity{e("1", nil), e("2", nil)}))

	st := New(context.Background(), builtin(t, "startups"), nil, m)
	assert.Equal(t, 2, st.Len())
	_, ok := st.ByID("2")
	assert.True(t, ok)
}

func TestNewSurvivesBrokenMirror(t *testing.T) {
	m := mirror.NewMemory()
	m.Put(mirror.Key("startups"), []byte("{{{"))

	var notices []syncer.Notice
	st := New(context.Background(), builtin(t, "startups"), nil, m,
		WithNotifier(func(n syncer.Notice) { notices = append(notices, n) }))
	assert.True(t, st.Degraded())
	assert.Equal(t, 0, st.Len())
	require.Len(t, notices, 1)
	assert.Equal(t, syncer.NoticeMirrorUnavailable, notices[0].Kind)
}

func TestAddOfflineUsesNextNumericID(t *testing.T) {
	st, faulty, _ := withItems(t, e("1", nil), e("5", nil), e("3", nil))
	faulty.Offline()

	env, err := st.Add(context.Background(), map[string]any{"name": "X"})
	require.NoError(t, err)
	assert.Equal(t, entity.LocalFallback, env.Outcome)
	assert.Equal(t, "6", env.Entity.ID.Value)
	got, ok := st.ByID("6")
	require.True(t, ok)
	assert.Equal(t, "X", got.Attrs["name"])
}

func TestEditAndRemoveUnknownID(t *testing.T) {
	st, _, _ := withItems(t, e("1", nil))

	_, err := st.Edit(context.Background(), "42", map[string]any{"name": "Y"})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	res, err := st.Remove(context.Background(), "42")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.False(t, res.Success)
	assert.Equal(t, "Startup not found", res.Message)
}

func TestRemoveReportsOutcome(t *testing.T) {
	st, faulty, m := withItems(t, e("1", nil), e("2", nil))

	res, err := st.Remove(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, entity.RemoteCommitted, res.Outcome)

	faulty.Offline()
	res, err = st.Remove(context.Background(), "2")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, entity.LocalFallback, res.Outcome)
	assert.Equal(t, syncer.MsgDeletedLocally, res.Message)

	assert.Equal(t, 0, st.Len())
	stored, err := m.Load(context.Background(), mirror.Key("startups"))
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestFeatured(t *testing.T) {
	st, _, _ := withItems(t,
		e("1", map[string]any{"featured": true}),
		e("2", map[string]any{"featured": false}),
		e("3", map[string]any{"featured": "true"}),
		e("4", map[string]any{"featured": float64(1)}),
		e("5", map[string]any{}),
	)
	assert.Equal(t, []string{"1", "3", "4"}, ids(st.Featured(0)))
	assert.Equal(t, []string{"1", "3"}, ids(st.Featured(2)))
}

func TestRecent(t *testing.T) {
	st, _, _ := withItems(t,
		e("1", map[string]any{"founded": "2020-05-01"}),
		e("2", map[string]any{}),
		e("3", map[string]any{"founded": "2023-01-10"}),
		e("4", map[string]any{"founded": "not a date"}),
		e("5", map[string]any{"founded": "2021-07-15T10:00:00Z"}),
	)
	assert.Equal(t, []string{"3", "5", "1", "2", "4"}, ids(st.Recent(0, "")))
	assert.Equal(t, []string{"3", "5"}, ids(st.Recent(2, "founded")))
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(st.Recent(10, "missing_field")),
		"no dates at all keeps collection order")
}

func TestSetLookupAndFetchAll(t *testing.T) {
	reg, err := schema.Builtin()
	require.NoError(t, err)
	stub := remotestub.NewStorage()
	stub.Seed("users", e("u1", map[string]any{"name": "Ann"}))

	set := NewSet(context.Background(), reg, stub, mirror.NewMemory())
	require.NoError(t, set.FetchAll(context.Background()))

	users, ok := set.Get("Users")
	require.True(t, ok)
	assert.Equal(t, []string{"u1"}, ids(users.All()))

	posts, ok := set.Get("blog-posts")
	require.True(t, ok)
	assert.NotZero(t, posts.Len(), "empty remote falls back to embedded defaults")

	_, ok = set.Get("nope")
	assert.False(t, ok)
	assert.Len(t, set.Stores(), len(reg.Kinds()))
}

type brokenSeed struct{}

func (brokenSeed) Defaults(string) ([]entity.Entity, error) { return nil, errors.New("boom") }

func TestSetFetchAllJoinsErrors(t *testing.T) {
	reg, err := schema.Builtin()
	require.NoError(t, err)
	set := NewSet(context.Background(), reg, nil, mirror.NewMemory(),
		WithPolicyOptions(syncer.WithSeed(brokenSeed{})))
	err = set.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startups")
	assert.Contains(t, err.Error(), "users")
}

func TestSetReportsMirrorFailureOnce(t *testing.T) {
	ctx := context.Background()
	reg, err := schema.Builtin()
	require.NoError(t, err)
	m := mirror.NewMemory()

	var (
		mu      sync.Mutex
		mirrorN int
	)
	set := NewSet(ctx, reg, nil, m,
		WithNotifier(func(n syncer.Notice) {
			if n.Kind == syncer.NoticeMirrorUnavailable {
				mu.Lock()
				mirrorN++
				mu.Unlock()
			}
		}),
		WithPolicyOptions(syncer.WithSeed(seed.Static{})))
	require.NoError(t, set.FetchAll(ctx))

	m.Fail(errors.New("quota exceeded"))
	for _, st := range set.Stores() {
		_, err := st.Add(ctx, map[string]any{"name": "X"})
		require.NoError(t, err)
	}

	for _, st := range set.Stores() {
		assert.True(t, st.Degraded(), st.Kind())
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, mirrorN)
}
