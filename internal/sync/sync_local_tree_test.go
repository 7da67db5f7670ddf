package sync

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVaultFile(t *testing.T, root, key, content string, mtime time.Time) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(full, mtime, mtime))
}

func TestBillyTree_List(t *testing.T) {
	root := t.TempDir()
	mtime := time.UnixMilli(1_700_000_000_123)
	writeVaultFile(t, root, "notes/a.md", "hello", mtime)
	writeVaultFile(t, root, "b.md", "x", mtime)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	tree, err := NewOSTree(root)
	require.NoError(t, err)

	entities, err := tree.List(context.Background())
	require.NoError(t, err)

	byKey := map[string]*Entity{}
	for _, e := range entities {
		byKey[e.Key] = e
	}
	require.Len(t, byKey, 4)

	a := byKey["notes/a.md"]
	require.NotNil(t, a)
	assert.Equal(t, int64(5), a.Size)
	assert.Equal(t, int64(5), a.SizeEnc)
	assert.Equal(t, mtime.UnixMilli(), a.MtimeCli)
	assert.Equal(t, "notes/a.md", a.KeyEnc)

	assert.Contains(t, byKey, "notes/")
	assert.Contains(t, byKey, "empty/")
	assert.True(t, byKey["empty/"].IsFolder())
}

func TestBillyTree_WriteSetsContentAndMtime(t *testing.T) {
	root := t.TempDir()
	tree, err := NewOSTree(root)
	require.NoError(t, err)
	ctx := context.Background()

	mtime := int64(1_650_000_000_000)
	require.NoError(t, tree.Write(ctx, "deep/er/c.md", strings.NewReader("first"), mtime))
	require.NoError(t, tree.Write(ctx, "deep/er/c.md", strings.NewReader("second"), mtime+1000))

	data, err := os.ReadFile(filepath.Join(root, "deep", "er", "c.md"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	rc, e, err := tree.Open(ctx, "deep/er/c.md")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
	assert.Equal(t, mtime+1000, e.MtimeCli)
	assert.Equal(t, int64(6), e.Size)

	entries, err := os.ReadDir(filepath.Join(root, "deep", "er"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestBillyTree_DownloadedFileStaysEqual(t *testing.T) {
	tree, err := NewOSTree(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	remote := file("a.md", 5, 1_650_000_001_000, 1_650_000_009_000)
	require.NoError(t, tree.Write(ctx, "a.md", strings.NewReader("hello"), remote.Mtime()))

	local, err := tree.List(ctx)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, remote.MtimeCli, local[0].MtimeCli)

	plan, err := Ensemble(local, []*Entity{historyRecord(remote)}, []*Entity{remote}, EnsembleOptions{})
	require.NoError(t, err)
	plan, err = Decide(plan, defaultDecide)
	require.NoError(t, err)
	assert.Equal(t, DecisionEqual, plan["a.md"].Decision, "an untouched download is not uploaded again")
}

func TestBillyTree_WriteMtimeUnsupported(t *testing.T) {
	tree := NewBillyTree(memfs.New())
	ctx := context.Background()

	err := tree.Write(ctx, "a.md", strings.NewReader("a"), 1_650_000_000_000)
	require.ErrorIs(t, err, billy.ErrNotSupported)

	require.NoError(t, tree.Write(ctx, "b.md", strings.NewReader("b"), 0), "no mtime to keep")
}

func TestBillyTree_EnsureDirAndDelete(t *testing.T) {
	tree := NewBillyTree(memfs.New())
	ctx := context.Background()

	require.NoError(t, tree.EnsureDir(ctx, "a/b/"))
	require.NoError(t, tree.EnsureDir(ctx, "x/y.md"))
	require.NoError(t, tree.EnsureDir(ctx, "top.md"))

	_, err := tree.FS().Stat("a/b")
	require.NoError(t, err)
	_, err = tree.FS().Stat("x")
	require.NoError(t, err)

	require.NoError(t, tree.Write(ctx, "a/b/c.md", strings.NewReader("c"), 0))
	require.NoError(t, tree.Delete(ctx, "a/"))
	_, err = tree.FS().Stat("a")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, tree.Delete(ctx, "missing.md"), "deleting a missing path is fine")

	_, _, err = tree.Open(ctx, "x/")
	require.Error(t, err)
}

func TestBillyTree_ListMissingRoot(t *testing.T) {
	tree := NewBillyTree(memfs.New())
	entities, err := tree.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entities)
}
