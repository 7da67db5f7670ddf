package blob

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// ServiceType tags a backend implementation.
type ServiceType string

const (
	ServiceS3    ServiceType = "s3"
	ServiceMinio ServiceType = "minio"
	ServiceSFTP  ServiceType = "sftp"
	ServiceFS    ServiceType = "fs"

	// ServiceOneDrive rejects zero-byte uploads. No backend in this module reports it, but
	// the executor honours the quirk for any Backend that does.
	ServiceOneDrive ServiceType = "onedrive"
)

// MetaMtime is the object metadata key carrying the client-side modification time (unix ms).
const MetaMtime = "mtime"

var ErrObjectNotFound = errors.New("object not found")

// Backend is the raw object store a remote replica lives in. Keys are at-rest keys;
// a key ending with "/" is a folder marker.
type Backend interface {
	ServiceType() ServiceType
	ListObjects(ctx context.Context) ([]*ObjectInfo, error)
	PutObject(ctx context.Context, params *PutObjectParams) (*ObjectInfo, error)
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)
	DeleteObject(ctx context.Context, key string) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	// ClientMtime is the uploader's modification time in unix ms, 0 when unknown.
	ClientMtime int64
}

type PutObjectParams struct {
	Key         string
	Body        io.Reader
	Size        int64
	ClientMtime int64
}

type GetObjectResponse struct {
	Body         io.ReadCloser
	Size         int64
	LastModified time.Time
}

func IsFolderKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

func formatMtime(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

// parseMtime reads the mtime metadata value, looking the key up case-insensitively since
// stores canonicalize user metadata keys differently.
func parseMtime(meta map[string]string) int64 {
	for k, v := range meta {
		k = strings.ToLower(k)
		if k == MetaMtime || k == "x-amz-meta-"+MetaMtime {
			ms, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0
			}
			return int64(ms)
		}
	}
	return 0
}

// withParentFolders adds folder markers for every ancestor of a plain key that the store
// did not list itself. Flat stores only have folders when something uploaded a marker.
func withParentFolders(objects []*ObjectInfo) []*ObjectInfo {
	seen := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		seen[obj.Key] = struct{}{}
	}

	for _, obj := range objects {
		key := strings.TrimSuffix(obj.Key, "/")
		for {
			idx := strings.LastIndex(key, "/")
			if idx < 0 {
				break
			}
			key = key[:idx]
			parent := key + "/"
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			objects = append(objects, &ObjectInfo{
				Key:          parent,
				LastModified: obj.LastModified,
			})
		}
	}
	return objects
}
