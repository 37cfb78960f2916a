package capability_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptreel/internal/capability"
	"scriptreel/internal/testsupport"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := capability.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	url, err := store.Put(ctx, []byte("frames"), "gen-1/final.mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"), url)

	path, ok := capability.LocalPath(url)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))

	exists, err := store.Exists(ctx, "gen-1/final.mp4")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := store.Delete(ctx, "gen-1/final.mp4")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "gen-1/final.mp4")
	require.NoError(t, err)
	assert.False(t, deleted)

	exists, err = store.Exists(ctx, "gen-1/final.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageBaseURLAndKeys(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := capability.NewLocalStorage(root, "https://media.example/")
	require.NoError(t, err)

	url, err := store.Put(ctx, []byte("x"), "/a/./b.png")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/a/b.png", url)
	assert.FileExists(t, filepath.Join(root, "a", "b.png"))

	_, err = store.Put(ctx, []byte("x"), "../escape.png")
	assert.Error(t, err)
	_, err = store.Put(ctx, []byte("x"), "  ")
	assert.Error(t, err)
}

func TestLocalStorageEmptyFileIsNotRetrievable(t *testing.T) {
	ctx := context.Background()
	store, err := capability.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)
	_, err = store.Put(ctx, nil, "empty.mp4")
	require.NoError(t, err)
	exists, err := store.Exists(ctx, "empty.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSniffAndExtension(t *testing.T) {
	png := testsupport.PNGHeader
	mime, ext := capability.Sniff(png)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, "png", ext)

	mime, ext = capability.Sniff([]byte("plain words"))
	assert.Equal(t, "application/octet-stream", mime)
	assert.Empty(t, ext)

	assert.Equal(t, "scene_1.png", capability.WithExtension("scene_1", png))
	assert.Equal(t, "scene_1.jpg", capability.WithExtension("scene_1.jpg", png))
	assert.Equal(t, "scene_1", capability.WithExtension("scene_1", []byte("?")))
}

func TestLocalPath(t *testing.T) {
	p, ok := capability.LocalPath("file:///tmp/a.mp3")
	assert.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/tmp/a.mp3"), p)

	p, ok = capability.LocalPath("/var/media/b.mp3")
	assert.True(t, ok)
	assert.Equal(t, "/var/media/b.mp3", p)

	_, ok = capability.LocalPath("https://cdn.example/c.mp3")
	assert.False(t, ok)
}

func TestNewStorageFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s, err := capability.NewStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &capability.LocalStorage{}, s)

	cfg.Storage.Backend = "ftp"
	_, err = capability.NewStorage(context.Background(), cfg)
	assert.Error(t, err)
}
