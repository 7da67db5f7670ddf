package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/openmined/vaultsync/internal/utils"
)

const tempFilePrefix = ".vaultsync-tmp-"

// BillyTree is a LocalTree over a billy filesystem rooted at the vault.
type BillyTree struct {
	fs billy.Filesystem
	// root is the vault directory on disk, empty for in-memory filesystems
	root string
}

// NewBillyTree wraps fs. Writes that carry an mtime fail unless fs implements billy.Change.
func NewBillyTree(fs billy.Filesystem) *BillyTree {
	return &BillyTree{fs: fs}
}

// NewOSTree opens the vault directory at root, creating it when missing.
func NewOSTree(root string) (*BillyTree, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("ensure vault dir: %w", err)
	}
	return &BillyTree{fs: osfs.New(root), root: root}, nil
}

func (t *BillyTree) FS() billy.Filesystem {
	return t.fs
}

func (t *BillyTree) List(ctx context.Context) ([]*Entity, error) {
	var entities []*Entity
	if err := t.walk(ctx, "", &entities); err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}
	return entities, nil
}

func (t *BillyTree) walk(ctx context.Context, dir string, out *[]*Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	infos, err := t.fs.ReadDir(dir)
	if err != nil {
		if dir == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, info := range infos {
		key := path.Join(dir, info.Name())
		switch {
		case info.IsDir():
			*out = append(*out, &Entity{Key: key + "/", KeyEnc: key + "/"})
			if err := t.walk(ctx, key, out); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			mtime := info.ModTime().UnixMilli()
			*out = append(*out, &Entity{
				Key:      key,
				KeyEnc:   key,
				Size:     info.Size(),
				SizeEnc:  info.Size(),
				MtimeCli: mtime,
			})
		}
	}
	return nil
}

func (t *BillyTree) EnsureDir(_ context.Context, key string) error {
	dir := strings.TrimSuffix(key, "/")
	if !isFolderKey(key) {
		dir = path.Dir(key)
	}
	if dir == "." || dir == "" {
		return nil
	}
	return t.fs.MkdirAll(dir, 0o755)
}

func (t *BillyTree) Delete(_ context.Context, key string) error {
	var err error
	if isFolderKey(key) {
		err = util.RemoveAll(t.fs, strings.TrimSuffix(key, "/"))
	} else {
		err = t.fs.Remove(key)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (t *BillyTree) Open(_ context.Context, key string) (io.ReadCloser, *Entity, error) {
	if isFolderKey(key) {
		return nil, nil, fmt.Errorf("open %s: is a folder", key)
	}
	info, err := t.fs.Stat(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := t.fs.Open(key)
	if err != nil {
		return nil, nil, err
	}
	return f, &Entity{
		Key:      key,
		KeyEnc:   key,
		Size:     info.Size(),
		SizeEnc:  info.Size(),
		MtimeCli: info.ModTime().UnixMilli(),
	}, nil
}

// Write stages the content in a temp file next to key and renames it into place.
func (t *BillyTree) Write(ctx context.Context, key string, r io.Reader, mtime int64) error {
	if err := t.EnsureDir(ctx, key); err != nil {
		return err
	}

	tmp, err := util.TempFile(t.fs, path.Dir(key), tempFilePrefix)
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		t.fs.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		t.fs.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err := t.fs.Rename(tmpName, key); err != nil {
		// not every filesystem replaces on rename
		if rmErr := t.fs.Remove(key); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			t.fs.Remove(tmpName) //nolint:errcheck
			return fmt.Errorf("replace %s: %w", key, err)
		}
		if err := t.fs.Rename(tmpName, key); err != nil {
			t.fs.Remove(tmpName) //nolint:errcheck
			return fmt.Errorf("replace %s: %w", key, err)
		}
	}

	// temp files are created 0600
	if err := utils.Chmod(t.fs, t.root, key, 0o644); err != nil && !errors.Is(err, billy.ErrNotSupported) {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if mtime > 0 {
		if err := utils.Chtimes(t.fs, t.root, key, time.UnixMilli(mtime)); err != nil {
			return fmt.Errorf("set mtime of %s: %w", key, err)
		}
	}
	return nil
}

var _ LocalTree = (*BillyTree)(nil)
