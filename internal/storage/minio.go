package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CacheBuckets wraps the MinIO client used for the gateway's named cache
// buckets (export downloads, report renders). Buckets share a common name
// prefix so the logout teardown can enumerate and purge them.
type CacheBuckets struct {
	client *minio.Client
	prefix string
}

// NewCacheBuckets creates the MinIO client. Returns an error when the
// endpoint is missing; callers treat a nil *CacheBuckets as "feature off".
func NewCacheBuckets(cfg *MinIOConfig) (*CacheBuckets, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	return &CacheBuckets{client: mc, prefix: cfg.BucketPrefix}, nil
}

// EnsureBucket creates the named cache bucket if needed (idempotent).
func (s *CacheBuckets) EnsureBucket(ctx context.Context, name string) error {
	bucket := s.prefix + name
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := s.client.BucketExists(ctx, bucket)
		if xerr != nil || !exist {
			return fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return nil
}

// PutObject stores data in the named cache bucket.
func (s *CacheBuckets) PutObject(ctx context.Context, name, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.prefix+name, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// GetObject returns a ReadCloser for a cached object, or an error when the
// object does not exist.
func (s *CacheBuckets) GetObject(ctx context.Context, name, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.prefix+name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// ListCacheBuckets enumerates the buckets carrying the cache prefix.
func (s *CacheBuckets) ListCacheBuckets(ctx context.Context) ([]string, error) {
	all, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("minio list buckets: %w", err)
	}
	var names []string
	for _, b := range all {
		if strings.HasPrefix(b.Name, s.prefix) {
			names = append(names, b.Name)
		}
	}
	return names, nil
}

// PurgeCacheBuckets removes every object from every cache-prefixed bucket.
// Best effort: purging continues past per-bucket failures, and the first
// error is returned.
func (s *CacheBuckets) PurgeCacheBuckets(ctx context.Context) error {
	names, err := s.ListCacheBuckets(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, bucket := range names {
		if err := s.purgeBucket(ctx, bucket); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *CacheBuckets) purgeBucket(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	objects := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true})
	errCh := s.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{})
	for e := range errCh {
		if e.Err != nil {
			return fmt.Errorf("purge %s: %w", bucket, e.Err)
		}
	}
	return nil
}
