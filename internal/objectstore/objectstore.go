// Package objectstore reads raw messages that SES offloaded to a bucket.
package objectstore

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("object access denied")
)

// Ref names an object. Region may be empty, in which case the fetcher's
// default region applies.
type Ref struct {
	Bucket string
	Key    string
	Region string
}

func (r Ref) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

type Fetcher interface {
	// Fetch opens the object for reading. The caller closes the reader.
	Fetch(ctx context.Context, ref Ref) (io.ReadCloser, error)
}
