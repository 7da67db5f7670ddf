package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChtimes_OSFS(t *testing.T) {
	root := t.TempDir()
	fs := osfs.New(root)
	require.NoError(t, util.WriteFile(fs, "notes/a.md", []byte("a"), 0o600))

	mtime := time.UnixMilli(1_650_000_001_000)
	require.NoError(t, Chtimes(fs, root, "notes/a.md", mtime))

	info, err := os.Stat(filepath.Join(root, "notes", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, mtime.UnixMilli(), info.ModTime().UnixMilli())

	info, err = fs.Stat("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, mtime.UnixMilli(), info.ModTime().UnixMilli())
}

func TestChmod_OSFS(t *testing.T) {
	if os.PathSeparator != '/' {
		t.Skip("permission bits are not kept on windows")
	}
	root := t.TempDir()
	fs := osfs.New(root)
	require.NoError(t, util.WriteFile(fs, "a.md", []byte("a"), 0o600))

	require.NoError(t, Chmod(fs, root, "a.md", 0o644))

	info, err := os.Stat(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestChtimes_NoRoot(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "a.md", []byte("a"), 0o644))

	err := Chtimes(fs, "", "a.md", time.Now())
	require.ErrorIs(t, err, billy.ErrNotSupported)
	require.ErrorIs(t, Chmod(fs, "", "a.md", 0o644), billy.ErrNotSupported)
}

func TestChtimes_MissingFile(t *testing.T) {
	root := t.TempDir()
	err := Chtimes(osfs.New(root), root, "missing.md", time.Now())
	require.ErrorIs(t, err, os.ErrNotExist)
}
