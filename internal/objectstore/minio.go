package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ Fetcher = (*MinIOFetcher)(nil)

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseTLS          bool
	Region          string
}

// MinIOFetcher reads from a single S3-compatible endpoint. Ref.Region is
// ignored; the endpoint decides where buckets live.
type MinIOFetcher struct {
	client *minio.Client
}

func NewMinIOFetcher(cfg MinIOConfig) (*MinIOFetcher, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOFetcher{client: mc}, nil
}

func (f *MinIOFetcher) Fetch(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	obj, err := f.client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinIOError(ref, err)
	}

	// GetObject is lazy; Stat surfaces a missing object before the caller reads
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classifyMinIOError(ref, err)
	}
	return obj, nil
}

func classifyMinIOError(ref Ref, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %s: %w", ErrNotFound, ref, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s: %w", ErrAccessDenied, ref, err)
	}
	return fmt.Errorf("get object %s: %w", ref, err)
}
