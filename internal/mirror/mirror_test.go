package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/entity"
)

func sample() []entity.Entity {
	return []entity.Entity{
		entity.New(entity.ServerID("1"), map[string]any{"name": "Acme", "employees": float64(12), "featured": true}),
		entity.New(entity.ProvisionalID(2), map[string]any{"name": "Globex", "tags": []any{"ai", "b2b"}}),
	}
}

// contract общие ожидания для всех драйверов.
func contract(t *testing.T, m Mirror) {
	t.Helper()
	ctx := context.Background()

	got, err := m.Load(ctx, Key("startups"))
	require.NoError(t, err, "missing key is not an error")
	assert.Empty(t, got)

	require.NoError(t, m.Save(ctx, Key("startups"), sample()))
	got, err = m.Load(ctx, Key("startups"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID.Value)
	assert.False(t, got[0].ID.Provisional)
	assert.Equal(t, float64(12), got[0].Attrs["employees"])
	assert.True(t, got[1].ID.Provisional, "provisional flag survives the round trip")
	assert.Equal(t, []any{"ai", "b2b"}, got[1].Attrs["tags"])

	// перезапись целиком
	require.NoError(t, m.Save(ctx, Key("startups"), sample()[:1]))
	got, err = m.Load(ctx, Key("startups"))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// ключи изолированы
	other, err := m.Load(ctx, Key("users"))
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, m.Save(ctx, Key("users"), nil))
	other, err = m.Load(ctx, Key("users"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryMirror(t *testing.T) {
	contract(t, NewMemory())
}

func TestFileMirror(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFile(dir)
	require.NoError(t, err)
	contract(t, m)

	_, err = os.Stat(filepath.Join(dir, "backoffice_startups.json"))
	assert.NoError(t, err)
	tmp, _ := filepath.Glob(filepath.Join(dir, ".mirror-*.tmp"))
	assert.Empty(t, tmp, "no temp files left behind")
}

func TestSQLiteMirror(t *testing.T) {
	m, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	contract(t, m)
}

func TestSQLiteMirrorSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mirror.db")

	m, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, Key("users"), sample()))
	require.NoError(t, m.Close())

	m, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer m.Close()
	got, err := m.Load(ctx, Key("users"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCorruptValueIsMirrorUnavailable(t *testing.T) {
	m := NewMemory()
	m.Put(Key("startups"), []byte(`{"not": "a list"`))

	_, err := m.Load(context.Background(), Key("startups"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrMirrorUnavailable))

	var me *entity.MirrorError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "load", me.Op)
}

func TestFailingMemory(t *testing.T) {
	m := NewMemory()
	m.Fail(errors.New("quota exceeded"))
	err := m.Save(context.Background(), Key("startups"), sample())
	assert.ErrorIs(t, err, entity.ErrMirrorUnavailable)

	m.Fail(nil)
	assert.NoError(t, m.Save(context.Background(), Key("startups"), sample()))
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	m, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	m, err = Open(ctx, Config{Driver: "file", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, m)

	m, err = Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "m.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, m)
	assert.NoError(t, Close(m))

	_, err = Open(ctx, Config{Driver: "redis"})
	assert.Error(t, err)
	_, err = Open(ctx, Config{Driver: "postgres"})
	assert.Error(t, err, "empty dsn")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "backoffice:blogposts", Key("blogposts"))
}
