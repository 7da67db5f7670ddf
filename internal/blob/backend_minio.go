package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioBackend struct {
	client *minio.Client
	config *MinioConfig
}

func NewMinioBackend(cfg *MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioBackend{client: client, config: cfg}, nil
}

func (m *MinioBackend) ServiceType() ServiceType {
	return ServiceMinio
}

func (m *MinioBackend) fullKey(key string) string {
	return m.config.Prefix + key
}

func (m *MinioBackend) ListObjects(ctx context.Context) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo

	// WithMetadata is a MinIO extension that returns user metadata inline.
	for obj := range m.client.ListObjects(ctx, m.config.BucketName, minio.ListObjectsOptions{
		Prefix:       m.config.Prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		key := strings.TrimPrefix(obj.Key, m.config.Prefix)
		if key == "" {
			continue
		}
		objects = append(objects, &ObjectInfo{
			Key:          key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ClientMtime:  parseMtime(obj.UserMetadata),
		})
	}

	return withParentFolders(objects), nil
}

func (m *MinioBackend) PutObject(ctx context.Context, params *PutObjectParams) (*ObjectInfo, error) {
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if params.ClientMtime > 0 {
		opts.UserMetadata = map[string]string{MetaMtime: formatMtime(params.ClientMtime)}
	}

	if _, err := m.client.PutObject(ctx, m.config.BucketName, m.fullKey(params.Key), params.Body, params.Size, opts); err != nil {
		return nil, err
	}

	stat, err := m.client.StatObject(ctx, m.config.BucketName, m.fullKey(params.Key), minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat after put: %w", err)
	}

	return &ObjectInfo{
		Key:          params.Key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ClientMtime:  params.ClientMtime,
	}, nil
}

func (m *MinioBackend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	obj, err := m.client.GetObject(ctx, m.config.BucketName, m.fullKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}

	return &GetObjectResponse{
		Body:         obj,
		Size:         stat.Size,
		LastModified: stat.LastModified,
	}, nil
}

func (m *MinioBackend) DeleteObject(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.config.BucketName, m.fullKey(key), minio.RemoveObjectOptions{})
}

var _ Backend = (*MinioBackend)(nil)
