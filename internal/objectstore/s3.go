package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	awsmiddleware "github.com/aws/smithy-go/middleware"
)

var _ Fetcher = (*S3Fetcher)(nil)

type S3Config struct {
	// Region is used when a Ref carries none.
	Region string
	// Endpoint overrides the AWS endpoint, for S3-compatible services.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	HTTPClient      *http.Client
}

// S3Fetcher keeps one client per region, since a bucket must be read through
// the region it lives in.
type S3Fetcher struct {
	base aws.Config
	cfg  S3Config

	mu      sync.Mutex
	clients map[string]*s3.Client
}

func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}

	base, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Fetcher{
		base:    base,
		cfg:     cfg,
		clients: make(map[string]*s3.Client),
	}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	out, err := f.client(ref.Region).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, classifyS3Error(ref, err)
	}
	return out.Body, nil
}

func (f *S3Fetcher) client(region string) *s3.Client {
	if region == "" {
		region = f.base.Region
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[region]; ok {
		return c
	}

	c := s3.NewFromConfig(f.base, func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
		if f.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.cfg.Endpoint)
		}
		o.UsePathStyle = f.cfg.UsePathStyle
	})
	f.clients[region] = c
	return c
}

func classifyS3Error(ref Ref, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, ref, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: %s: %w", ErrNotFound, ref, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s: %w", ErrAccessDenied, ref, err)
		}
	}
	return fmt.Errorf("get object %s: %w", ref, err)
}

// removeDisableGzip drops a finalize step that some S3-compatible services
// reject with signature errors.
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
