package utils

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
)

// osfs and memfs do not implement billy.Change. For a filesystem rooted at a directory
// on disk, pass that directory as root and the change is applied to the real file.
// With an empty root these return billy.ErrNotSupported.

func Chtimes(fs billy.Filesystem, root, name string, t time.Time) error {
	if ch, ok := fs.(billy.Change); ok {
		return ch.Chtimes(name, t, t)
	}
	if root == "" {
		return billy.ErrNotSupported
	}
	return os.Chtimes(diskPath(root, name), t, t)
}

func Chmod(fs billy.Filesystem, root, name string, mode os.FileMode) error {
	if ch, ok := fs.(billy.Change); ok {
		return ch.Chmod(name, mode)
	}
	if root == "" {
		return billy.ErrNotSupported
	}
	return os.Chmod(diskPath(root, name), mode)
}

func diskPath(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(name))
}
