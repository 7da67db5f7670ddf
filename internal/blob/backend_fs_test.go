package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, b Backend, key, content string, mtime int64) *ObjectInfo {
	t.Helper()
	info, err := b.PutObject(context.Background(), &PutObjectParams{
		Key:         key,
		Body:        bytes.NewReader([]byte(content)),
		Size:        int64(len(content)),
		ClientMtime: mtime,
	})
	require.NoError(t, err)
	return info
}

func TestFSBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewFSBackendWithRoot(filepath.Join(t.TempDir(), "remote"))
	require.NoError(t, err)
	assert.Equal(t, ServiceFS, b.ServiceType())

	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	info := put(t, b, "notes/a.md", "alpha", mtime)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, mtime, info.ClientMtime)
	assert.Equal(t, mtime, info.LastModified.UnixMilli())

	folder := put(t, b, "empty/", "", 0)
	assert.Equal(t, "empty/", folder.Key)

	objects, err := b.ListObjects(ctx)
	require.NoError(t, err)
	byKey := map[string]*ObjectInfo{}
	for _, o := range objects {
		byKey[o.Key] = o
	}
	require.Len(t, byKey, 3)
	assert.Contains(t, byKey, "notes/")
	assert.Contains(t, byKey, "empty/")
	assert.Equal(t, mtime, byKey["notes/a.md"].ClientMtime)
	assert.Zero(t, byKey["notes/"].ClientMtime)

	resp, err := b.GetObject(ctx, "notes/a.md")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "alpha", string(data))
	assert.Equal(t, int64(5), resp.Size)

	require.NoError(t, b.DeleteObject(ctx, "notes/a.md"))
	require.NoError(t, b.DeleteObject(ctx, "notes/"))
	require.NoError(t, b.DeleteObject(ctx, "notes/a.md"), "deleting twice is fine")

	_, err = b.GetObject(ctx, "notes/a.md")
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	objects, err = b.ListObjects(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "empty/", objects[0].Key)
}

func TestFSBackend_Overwrite(t *testing.T) {
	b, err := NewFSBackendWithRoot(t.TempDir())
	require.NoError(t, err)

	put(t, b, "a.md", "long content", 1000)
	info := put(t, b, "a.md", "short", 2000)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, int64(2000), info.ClientMtime)
}

func TestFSBackend_EmptyMemfs(t *testing.T) {
	b := NewFSBackend(memfs.New())
	objects, err := b.ListObjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestFSBackend_MemfsRejectsClientMtime(t *testing.T) {
	b := NewFSBackend(memfs.New())
	_, err := b.PutObject(context.Background(), &PutObjectParams{
		Key:         "a.md",
		Body:        bytes.NewReader([]byte("a")),
		ClientMtime: 1_650_000_001_000,
	})
	require.ErrorIs(t, err, billy.ErrNotSupported)

	info := put(t, b, "b.md", "b", 0)
	assert.Equal(t, int64(1), info.Size)
}

func TestFSBackend_KeepsClientMtimeOnDisk(t *testing.T) {
	root := t.TempDir()
	b, err := NewFSBackendWithRoot(root)
	require.NoError(t, err)

	mtime := int64(1_650_000_001_000)
	put(t, b, "deep/a.md", "a", mtime)

	fi, err := os.Stat(filepath.Join(root, "deep", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, mtime, fi.ModTime().UnixMilli())
}

func TestFSBackend_ListCanceled(t *testing.T) {
	b, err := NewFSBackendWithRoot(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.ListObjects(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewBackend_FS(t *testing.T) {
	root := t.TempDir()
	b, err := NewBackend(context.Background(), &Config{Type: ServiceFS, FS: FSConfig{Root: root}})
	require.NoError(t, err)
	assert.Equal(t, ServiceFS, b.ServiceType())

	_, err = NewBackend(context.Background(), &Config{Type: ServiceFS})
	require.Error(t, err)
}
