package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalStore(root, "http://localhost:8080/")
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Store(ctx, "cars", upload("Front.JPG", 64))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "cars/"))
	assert.True(t, strings.HasSuffix(path, ".jpg"))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	require.NoError(t, err)
	assert.Len(t, data, 64)

	ok, err := store.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:8080/uploads/"+path, store.URL(path))

	require.NoError(t, store.Delete(ctx, path))
	ok, err = store.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, store.Delete(ctx, path), "deleting twice is fine")
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, fmt.Errorf("connection reset")
	}
	n := copy(p, strings.Repeat("x", r.n))
	r.n -= n
	return n, nil
}

func (r *failingReader) Close() error { return nil }

func TestLocalStoreRemovesPartialFile(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "http://localhost")
	require.NoError(t, err)

	file := Upload{
		Filename: "broken.png",
		Size:     1024,
		Open: func() (io.ReadCloser, error) {
			return &failingReader{n: 16}, nil
		},
	}
	_, err = store.Store(context.Background(), "cars", file)
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "cars"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost")
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{"../secret", "/etc/passwd", "a/../../b"} {
		_, err := store.Exists(ctx, p)
		assert.Error(t, err, p)
		assert.Error(t, store.Delete(ctx, p), p)
	}
}

func TestUploadExt(t *testing.T) {
	assert.Equal(t, "png", Upload{Filename: "Logo.PNG"}.Ext())
	assert.Equal(t, "", Upload{Filename: "README"}.Ext())
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
