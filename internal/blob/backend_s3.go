package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

const (
	// ListObjectsV2 does not return user metadata, so every object is HEADed.
	s3HeadConcurrency = 16
)

type S3Backend struct {
	s3Client *s3.Client
	config   *S3Config
}

func NewS3BackendWithClient(s3Client *s3.Client, cfg *S3Config) *S3Backend {
	return &S3Backend{
		s3Client: s3Client,
		config:   cfg,
	}
}

func NewS3Backend(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          64,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 5 * time.Minute,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3BackendWithClient(client, cfg), nil
}

func (s *S3Backend) ServiceType() ServiceType {
	return ServiceS3
}

func (s *S3Backend) fullKey(key string) string {
	return s.config.Prefix + key
}

// ===================================================================================================

func (s *S3Backend) ListObjects(ctx context.Context) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
		Prefix: aws.String(s.config.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.config.Prefix)
			if key == "" {
				continue
			}
			objects = append(objects, &ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s3HeadConcurrency)
	for _, obj := range objects {
		if IsFolderKey(obj.Key) {
			continue
		}
		g.Go(func() error {
			head, err := s.s3Client.HeadObject(gctx, &s3.HeadObjectInput{
				Bucket: &s.config.BucketName,
				Key:    aws.String(s.fullKey(obj.Key)),
			})
			if err != nil {
				return fmt.Errorf("head %s: %w", obj.Key, err)
			}
			obj.ClientMtime = parseMtime(head.Metadata)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return withParentFolders(objects), nil
}

// ===================================================================================================

func (s *S3Backend) PutObject(ctx context.Context, params *PutObjectParams) (*ObjectInfo, error) {
	input := &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           aws.String(s.fullKey(params.Key)),
		Body:          params.Body,
		ContentLength: aws.Int64(params.Size),
	}
	if params.ClientMtime > 0 {
		input.Metadata = map[string]string{MetaMtime: formatMtime(params.ClientMtime)}
	}

	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return nil, err
	}

	// s3.PutObjectOutput does not have LastModified
	head, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    input.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("head after put: %w", err)
	}

	return &ObjectInfo{
		Key:          params.Key,
		Size:         aws.ToInt64(head.ContentLength),
		LastModified: aws.ToTime(head.LastModified),
		ClientMtime:  params.ClientMtime,
	}, nil
}

func (s *S3Backend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       &s.config.BucketName,
		Key:          aws.String(s.fullKey(key)),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}

	return &GetObjectResponse{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (s *S3Backend) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.config.BucketName,
		Key:    aws.String(s.fullKey(key)),
	})
	return err
}

var _ Backend = (*S3Backend)(nil)
