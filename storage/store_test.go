package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "a/b.py|123", []byte(`{"x":1}`)))
	data, err := s.Get(ctx, "a/b.py|123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(data))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b_py_123"}, keys)

	require.NoError(t, s.Delete(ctx, "a/b.py|123"))
	require.NoError(t, s.Delete(ctx, "a/b.py|123"))
	_, err = s.Get(ctx, "a/b.py|123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	type entry struct {
		Path  string `json:"path"`
		Count int    `json:"count"`
	}
	require.NoError(t, PutJSON(ctx, s, "k", entry{Path: "x.py", Count: 3}))

	var got entry
	require.NoError(t, GetJSON(ctx, s, "k", &got))
	assert.Equal(t, entry{Path: "x.py", Count: 3}, got)

	require.NoError(t, s.Put(ctx, "broken", []byte("{")))
	err = GetJSON(ctx, s, "broken", &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFileStore_Clear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("key-%d", i), []byte("{}")))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("keep"), 0644))

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, filepath.Join(dir, "README"))
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "abc-123_x", sanitizeKey("abc-123_x"))
	assert.Equal(t, "__tmp_a_py", sanitizeKey("/.tmp/a.py"))
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(nil))
	assert.True(t, isNotFound(jetstream.ErrKeyNotFound))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", jetstream.ErrKeyDeleted)))
	assert.True(t, isNotFound(errors.New("nats: key not found")))
	assert.False(t, isNotFound(errors.New("timeout")))
}

func TestNamespace_IsolatesKeys(t *testing.T) {
	ctx := context.Background()
	root, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	dup := Namespace(root, "duplicates")
	naming := Namespace(root, "naming")

	require.NoError(t, dup.Put(ctx, "a/b.py", []byte("1")))
	require.NoError(t, naming.Put(ctx, "a/b.py", []byte("2")))
	require.NoError(t, root.Put(ctx, "plain", []byte("3")))

	got, err := dup.Get(ctx, "a/b.py")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	keys, err := naming.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b_py"}, keys)

	n, err := dup.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = dup.Get(ctx, "a/b.py")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = naming.Get(ctx, "a/b.py")
	assert.NoError(t, err)
	_, err = root.Get(ctx, "plain")
	assert.NoError(t, err)
}
