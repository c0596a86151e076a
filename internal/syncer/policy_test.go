package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/entity"
	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/remotestub"
	"backoffice/internal/seed"
)

type fixture struct {
	stub    *remotestub.Storage
	faulty  *remote.Faulty
	mirror  *mirror.Memory
	policy  *Policy
	mu      sync.Mutex
	notices []Notice
}

func newFixture(t *testing.T, defaults ...entity.Entity) *fixture {
	t.Helper()
	f := &fixture{stub: remotestub.NewStorage(), mirror: mirror.NewMemory()}
	f.faulty = remote.NewFaulty(f.stub)
	f.policy = New("startups", f.faulty, f.mirror,
		WithSeed(seed.Static{"startups": defaults}),
		WithNotifier(func(n Notice) {
			f.mu.Lock()
			f.notices = append(f.notices, n)
			f.mu.Unlock()
		}),
	)
	return f
}

func (f *fixture) mirrored(t *testing.T) []entity.Entity {
	t.Helper()
	items, err := f.mirror.Load(context.Background(), mirror.Key("startups"))
	require.NoError(t, err)
	return items
}

func (f *fixture) noticeKinds() []NoticeKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NoticeKind, 0, len(f.notices))
	for _, n := range f.notices {
		out = append(out, n.Kind)
	}
	return out
}

func ids(items []entity.Entity) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID.Value)
	}
	return out
}

func numbered(n int) []entity.Entity {
	out := make([]entity.Entity, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, entity.New(entity.ServerID(fmt.Sprint(i)), map[string]any{"name": fmt.Sprintf("S%d", i)}))
	}
	return out
}

// ==== fetch-all ====

func TestFetchAllRemoteIsAuthoritative(t *testing.T) {
	f := newFixture(t)
	f.stub.Seed("startups", numbered(3)...)

	items, err := f.policy.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(items))
	assert.Equal(t, []string{"1", "2", "3"}, ids(f.mirrored(t)), "write-through after fetch")
}

func TestFetchAllFallsBackToMirror(t *testing.T) {
	f := newFixture(t, numbered(1)...)
	require.NoError(t, f.mirror.Save(context.Background(), mirror.Key("startups"), numbered(4)))
	f.faulty.Offline()

	items, err := f.policy.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Contains(t, f.noticeKinds(), NoticeServedFromMirror)
}

// пустой сервер и пустое зеркало → встроенный набор, и он сохранён.
func TestFetchAllSeedsDefaults(t *testing.T) {
	defaults := numbered(2)
	f := newFixture(t, defaults...)

	items, err := f.policy.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids(defaults), ids(items))
	assert.Equal(t, ids(defaults), ids(f.mirrored(t)))
	assert.Equal(t, ids(defaults), ids(f.policy.Snapshot()))
}

func TestFetchAllEveryoneEmpty(t *testing.T) {
	f := newFixture(t)
	items, err := f.policy.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

// ==== create ====

func TestCreateCommitted(t *testing.T) {
	f := newFixture(t)
	env := f.policy.Create(context.Background(), map[string]any{"name": "Acme"})

	require.Equal(t, entity.RemoteCommitted, env.Outcome)
	assert.NoError(t, env.Err)
	assert.False(t, env.Entity.ID.Provisional)
	assert.Equal(t, 1, f.stub.Len("startups"))
	assert.Equal(t, ids(f.policy.Snapshot()), ids(f.mirrored(t)))
}

// max id 5, сервер недоступен → id 6, local-fallback.
func TestCreateFallbackSynthesizesNextID(t *testing.T) {
	f := newFixture(t)
	f.stub.Seed("startups", numbered(5)...)
	_, err := f.policy.FetchAll(context.Background())
	require.NoError(t, err)

	f.faulty.Offline()
	env := f.policy.Create(context.Background(), map[string]any{"name": "X"})

	assert.Equal(t, entity.LocalFallback, env.Outcome)
	assert.Equal(t, "6", env.Entity.ID.Value)
	assert.True(t, env.Entity.ID.Provisional)
	assert.ErrorIs(t, env.Err, entity.ErrRemoteUnreachable)
	assert.Contains(t, f.noticeKinds(), NoticeSavedLocally)
}

func TestProvisionalSurvivesServerIDCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stub.Seed("startups", numbered(5)...)
	_, err := f.policy.FetchAll(ctx)
	require.NoError(t, err)

	f.faulty.Offline()
	env := f.policy.Create(ctx, map[string]any{"name": "offline work"})
	require.Equal(t, "6", env.Entity.ID.Value)

	// другой клиент успел создать запись 6 на сервере
	f.faulty.Heal()
	f.stub.Seed("startups", entity.New(entity.ServerID("6"), map[string]any{"name": "server six"}))

	items, err := f.policy.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, ids(items))
	assert.Equal(t, "server six", items[5].Text("name"))
	assert.False(t, items[5].ID.Provisional)
	assert.Equal(t, "offline work", items[6].Text("name"))
	assert.True(t, items[6].ID.Provisional)
	assert.Equal(t, ids(items), ids(f.mirrored(t)))
}

// при отказе сервера коллекция и зеркало содержат отправленные атрибуты.
func TestFallbackSafety(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stub.Seed("startups", numbered(2)...)
	_, err := f.policy.FetchAll(ctx)
	require.NoError(t, err)
	f.faulty.Offline()

	created := f.policy.Create(ctx, map[string]any{"name": "Offline Co", "stage": "Idea"})
	require.Equal(t, entity.LocalFallback, created.Outcome)

	updated := f.policy.Update(ctx, "1", map[string]any{"status": "Inactive"})
	require.Equal(t, entity.LocalFallback, updated.Outcome)
	assert.Equal(t, "S1", updated.Entity.Attrs["name"], "unrelated fields survive the merge")

	snap := f.policy.Snapshot()
	mirrored := f.mirrored(t)
	assert.Equal(t, ids(snap), ids(mirrored))
	for i := range snap {
		assert.Equal(t, snap[i].Attrs, mirrored[i].Attrs)
	}

	e, ok := f.policy.Collection().Get(created.Entity.ID.Value)
	require.True(t, ok)
	assert.Equal(t, "Offline Co", e.Attrs["name"])
	assert.Equal(t, "Idea", e.Attrs["stage"])
	e, _ = f.policy.Collection().Get("1")
	assert.Equal(t, "Inactive", e.Attrs["status"])
}

// параллельные add без сервера не дают одинаковых id.
func TestConcurrentProvisionalIDsAreUnique(t *testing.T) {
	f := newFixture(t)
	f.faulty.Offline()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.policy.Create(context.Background(), map[string]any{"name": fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, it := range f.policy.Snapshot() {
		assert.False(t, seen[it.ID.Value], "duplicate id %s", it.ID.Value)
		seen[it.ID.Value] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, int64(n), entity.MaxNumericID(f.policy.Snapshot()))
}

// ==== update ====

func TestUpdateUnknownIDFails(t *testing.T) {
	f := newFixture(t)
	env := f.policy.Update(context.Background(), "404", map[string]any{"name": "X"})
	assert.Equal(t, entity.Failed, env.Outcome)
	assert.ErrorIs(t, env.Err, entity.ErrNotFound)
	assert.EqualValues(t, 0, f.faulty.Calls(), "remote is not called for unknown ids")
}

func TestUpdateCommittedReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stub.Seed("startups", numbered(3)...)
	_, err := f.policy.FetchAll(ctx)
	require.NoError(t, err)

	env := f.policy.Update(ctx, "2", map[string]any{"name": "Renamed"})
	require.Equal(t, entity.RemoteCommitted, env.Outcome)
	assert.Equal(t, []string{"1", "2", "3"}, ids(f.policy.Snapshot()))
	e, _ := f.policy.Collection().Get("2")
	assert.Equal(t, "Renamed", e.Attrs["name"])
}

// две правки одного id подряд, сервер отвечает медленно и с ошибкой.
func TestSameIDEditsAreSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stub.Seed("startups", numbered(6)...)
	_, err := f.policy.FetchAll(ctx)
	require.NoError(t, err)

	gate := make(chan struct{})
	f.faulty.Offline().Gate(gate)

	var wg sync.WaitGroup
	results := make([]entity.Envelope, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = f.policy.Update(ctx, "6", map[string]any{"status": "Inactive"})
	}()
	require.Eventually(t, func() bool { return f.faulty.Calls() == 2 }, time.Second, time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = f.policy.Update(ctx, "6", map[string]any{"name": "Y"})
	}()
	// второй ждёт замок и до сервера не доходит
	require.Eventually(t, func() bool { return f.policy.Locks().Held("6") }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 2, f.faulty.Calls())

	close(gate)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, entity.LocalFallback, r.Outcome)
	}
	e, ok := f.policy.Collection().Get("6")
	require.True(t, ok)
	assert.Equal(t, "Inactive", e.Attrs["status"])
	assert.Equal(t, "Y", e.Attrs["name"])
	assert.False(t, f.policy.Locks().Held("6"))
}

// ==== delete ====

// удаление применяется локально при любом ответе сервера.
func TestDeleteIsUnconditional(t *testing.T) {
	for _, tc := range []struct {
		name    string
		fail    bool
		outcome entity.Outcome
	}{
		{"remote ok", false, entity.RemoteCommitted},
		{"remote down", true, entity.LocalFallback},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.stub.Seed("startups", numbered(3)...)
			_, err := f.policy.FetchAll(ctx)
			require.NoError(t, err)
			if tc.fail {
				f.faulty.Offline()
			}

			env := f.policy.Delete(ctx, "2")
			assert.Equal(t, tc.outcome, env.Outcome)
			assert.Equal(t, "2", env.Entity.ID.Value)
			assert.NotContains(t, ids(f.policy.Snapshot()), "2")
			assert.NotContains(t, ids(f.mirrored(t)), "2")
		})
	}
}

func TestDeleteUnknownIDFails(t *testing.T) {
	f := newFixture(t)
	env := f.policy.Delete(context.Background(), "missing")
	assert.Equal(t, entity.Failed, env.Outcome)
	assert.ErrorIs(t, env.Err, entity.ErrNotFound)
}

// ==== Зеркало недоступно ====

func TestMirrorFailureDegradesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mirror.Fail(errors.New("quota exceeded"))

	env := f.policy.Create(ctx, map[string]any{"name": "A"})
	assert.Equal(t, entity.RemoteCommitted, env.Outcome, "mirror failure does not fail the mutation")
	f.policy.Create(ctx, map[string]any{"name": "B"})

	assert.True(t, f.policy.Degraded())
	assert.Equal(t, 2, f.policy.Collection().Len())

	count := 0
	for _, k := range f.noticeKinds() {
		if k == NoticeMirrorUnavailable {
			count++
		}
	}
	assert.Equal(t, 1, count, "mirror-unavailable is surfaced once per session")

	// сервер пропал: данные берутся из памяти, не из сломанного зеркала
	f.faulty.Offline()
	items, err := f.policy.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestHydrateFromMirror(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mirror.Save(context.Background(), mirror.Key("startups"), numbered(3)))
	require.NoError(t, f.policy.Hydrate(context.Background()))
	assert.Equal(t, []string{"1", "2", "3"}, ids(f.policy.Snapshot()))
}

func TestNilRemoteIsOffline(t *testing.T) {
	p := New("users", nil, nil, WithSeed(seed.Static{}))
	env := p.Create(context.Background(), map[string]any{"name": "A"})
	assert.Equal(t, entity.LocalFallback, env.Outcome)
	assert.Equal(t, "1", env.Entity.ID.Value)
}
