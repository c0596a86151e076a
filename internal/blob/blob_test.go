package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndOpen(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/files")
	body := "hello logo"

	obj, err := s.Put(context.Background(), "Logo.PNG", strings.NewReader(body))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(sum[:]), obj.SHA256)
	assert.Equal(t, int64(len(body)), obj.Size)
	assert.Regexp(t, `^\d{4}/\d{2}/[0-9a-z]{26}\.png$`, obj.Key)
	assert.Equal(t, "/files/"+obj.Key, obj.URL)

	rc, err := s.Open(obj.Key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	require.NoError(t, s.Delete(obj.Key))
	_, err = s.Open(obj.Key)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploadKeysAreUnique(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "")
	seen := map[string]bool{}
	for range 20 {
		ref, err := s.Upload(context.Background(), "a.txt", strings.NewReader("x"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ref, "/files/"))
		assert.False(t, seen[ref])
		seen[ref] = true
	}
}

func TestPathRejectsEscapes(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "")
	for _, key := range []string{"", "/", "../etc/passwd", "2024/../../x", `..\x`} {
		_, err := s.Path(key)
		assert.ErrorIs(t, err, ErrBadKey, key)
	}
}

func TestPutHonoursCancelledContext(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Put(ctx, "a", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
