package blob

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
	"github.com/openmined/vaultsync/internal/utils"
)

// FSBackend keeps objects as files in a directory tree. Folder markers are directories.
type FSBackend struct {
	fs billy.Filesystem
	// root is the directory fs is rooted at on disk, empty for in-memory filesystems
	root string
}

// NewFSBackend serves objects from fs. Uploads carrying a client mtime fail unless fs
// implements billy.Change; use NewFSBackendWithRoot for a directory on disk.
func NewFSBackend(fs billy.Filesystem) *FSBackend {
	return &FSBackend{fs: fs}
}

func NewFSBackendWithRoot(root string) (*FSBackend, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("ensure fs backend root: %w", err)
	}
	return &FSBackend{fs: osfs.New(root), root: root}, nil
}

func (b *FSBackend) ServiceType() ServiceType {
	return ServiceFS
}

func (b *FSBackend) ListObjects(ctx context.Context) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo
	if err := b.walk(ctx, "", &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (b *FSBackend) walk(ctx context.Context, dir string, out *[]*ObjectInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := b.fs.ReadDir(dir)
	if err != nil {
		if dir == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	for _, entry := range entries {
		key := path.Join(dir, entry.Name())
		if entry.IsDir() {
			*out = append(*out, &ObjectInfo{
				Key:          key + "/",
				LastModified: entry.ModTime(),
			})
			if err := b.walk(ctx, key, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, &ObjectInfo{
			Key:          key,
			Size:         entry.Size(),
			LastModified: entry.ModTime(),
			ClientMtime:  entry.ModTime().UnixMilli(),
		})
	}
	return nil
}

func (b *FSBackend) PutObject(_ context.Context, params *PutObjectParams) (*ObjectInfo, error) {
	if IsFolderKey(params.Key) {
		dir := strings.TrimSuffix(params.Key, "/")
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", dir, err)
		}
		info, err := b.fs.Stat(dir)
		if err != nil {
			return nil, err
		}
		return &ObjectInfo{Key: params.Key, LastModified: info.ModTime()}, nil
	}

	if err := b.fs.MkdirAll(path.Dir(params.Key), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir parent of %q: %w", params.Key, err)
	}

	f, err := b.fs.Create(params.Key)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", params.Key, err)
	}
	if _, err := io.Copy(f, params.Body); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %q: %w", params.Key, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %q: %w", params.Key, err)
	}

	if params.ClientMtime > 0 {
		t := time.UnixMilli(params.ClientMtime)
		if err := utils.Chtimes(b.fs, b.root, params.Key, t); err != nil {
			return nil, fmt.Errorf("set mtime of %q: %w", params.Key, err)
		}
	}

	info, err := b.fs.Stat(params.Key)
	if err != nil {
		return nil, err
	}
	return &ObjectInfo{
		Key:          params.Key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		ClientMtime:  info.ModTime().UnixMilli(),
	}, nil
}

func (b *FSBackend) GetObject(_ context.Context, key string) (*GetObjectResponse, error) {
	info, err := b.fs.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}
	f, err := b.fs.Open(key)
	if err != nil {
		return nil, err
	}
	return &GetObjectResponse{
		Body:         f,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (b *FSBackend) DeleteObject(_ context.Context, key string) error {
	err := b.fs.Remove(strings.TrimSuffix(key, "/"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var _ Backend = (*FSBackend)(nil)
