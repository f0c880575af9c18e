package ingress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garrettladley/sesgate/internal/objectstore"
	"github.com/garrettladley/sesgate/internal/ses"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const (
	// DefaultMaxObjectBytes is the largest message SES accepts.
	DefaultMaxObjectBytes = 40 << 20
	DefaultStorageTimeout = 30 * time.Second

	// buffers that grew past this are left for the GC instead of pooled
	maxPooledBufferBytes = 4 << 20
)

var (
	ErrObjectTooLarge = errors.New("object exceeds size limit")
	errNoFetcher      = errors.New("no object store configured")
)

type ResolverOption func(*Resolver)

func WithMaxObjectBytes(n int64) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

func WithStorageTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Resolver turns DeliveryContent into raw message bytes.
type Resolver struct {
	fetcher  objectstore.Fetcher
	maxBytes int64
	timeout  time.Duration

	buffers sync.Pool
	leased  atomic.Int64
}

func NewResolver(fetcher objectstore.Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher:  fetcher,
		maxBytes: DefaultMaxObjectBytes,
		timeout:  DefaultStorageTimeout,
		buffers: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns inline content as is, or fetches the referenced object
// exactly once. It returns ErrNoContent when there is nothing to deliver and a
// *StorageError when the fetch fails.
func (r *Resolver) Resolve(ctx context.Context, c ses.DeliveryContent) ([]byte, error) {
	if !c.HasContent() {
		return nil, ErrNoContent
	}
	if c.StorageRef != nil {
		return r.fetch(ctx, *c.StorageRef)
	}
	return c.Inline, nil
}

func (r *Resolver) fetch(ctx context.Context, ref objectstore.Ref) ([]byte, error) {
	if r.fetcher == nil {
		return nil, &StorageError{Ref: ref, Cause: errNoFetcher}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	buf := r.lease()
	defer r.release(buf)

	start := time.Now()

	body, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, &StorageError{Ref: ref, Cause: err}
	}
	defer func() { _ = body.Close() }()

	if _, err := buf.ReadFrom(io.LimitReader(body, r.maxBytes+1)); err != nil {
		return nil, &StorageError{Ref: ref, Cause: err}
	}
	if int64(buf.Len()) > r.maxBytes {
		return nil, &StorageError{Ref: ref, Cause: ErrObjectTooLarge}
	}
	if buf.Len() == 0 {
		return nil, ErrNoContent
	}

	xslog.FromContext(ctx).DebugContext(ctx, "fetched stored message",
		xslog.ObjectGroup(ref.Bucket, ref.Key, ref.Region),
		xslog.Bytes(buf.Len()),
		xslog.Duration(time.Since(start)))

	// the buffer goes back to the pool, so the caller gets its own copy
	return bytes.Clone(buf.Bytes()), nil
}

func (r *Resolver) lease() *bytes.Buffer {
	r.leased.Add(1)
	buf := r.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (r *Resolver) release(buf *bytes.Buffer) {
	r.leased.Add(-1)
	if buf.Cap() > maxPooledBufferBytes {
		return
	}
	buf.Reset()
	r.buffers.Put(buf)
}
