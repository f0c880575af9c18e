package sns

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xslog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCertificateTTL = time.Hour

	maxCertificateBytes = 64 << 10
)

var errNoCertificate = errors.New("no CERTIFICATE block in response")

// CertificateSource resolves a signing certificate URL to a parsed certificate.
type CertificateSource interface {
	Certificate(ctx context.Context, certURL string) (*x509.Certificate, error)
}

// CertificateFetcher downloads signing certificates from allow-listed hosts and
// keeps the PEM bytes in a read-through cache. Concurrent misses for the same
// URL share a single download.
type CertificateFetcher struct {
	client *http.Client
	cache  storage.CertificateCache
	policy *HostPolicy
	ttl    time.Duration
	group  singleflight.Group
}

var _ CertificateSource = (*CertificateFetcher)(nil)

func NewCertificateFetcher(client *http.Client, cache storage.CertificateCache, policy *HostPolicy, ttl time.Duration) *CertificateFetcher {
	if ttl <= 0 {
		ttl = DefaultCertificateTTL
	}
	return &CertificateFetcher{
		client: client,
		cache:  cache,
		policy: policy,
		ttl:    ttl,
	}
}

func (f *CertificateFetcher) Certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if _, err := f.policy.Check(certURL); err != nil {
		return nil, err
	}

	logger := xslog.FromContext(ctx)

	data, err := f.cache.Get(ctx, certURL)
	switch {
	case err == nil:
		if cert, perr := parseCertificate(data); perr == nil {
			return cert, nil
		}
		logger.WarnContext(ctx, "discarding unparseable cached certificate", xslog.CertURL(certURL))
	case !errors.Is(err, storage.ErrNotFound):
		logger.WarnContext(ctx, "certificate cache read failed", xslog.CertURL(certURL), xslog.Error(err))
	}

	// the download is shared between callers, so it must not die with the first caller's request
	v, err, _ := f.group.Do(certURL, func() (any, error) {
		return f.download(context.WithoutCancel(ctx), certURL)
	})
	if err != nil {
		return nil, err
	}
	data = v.([]byte)

	cert, err := parseCertificate(data)
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set(ctx, certURL, data, f.ttl); err != nil {
		logger.WarnContext(ctx, "certificate cache write failed", xslog.CertURL(certURL), xslog.Error(err))
	}
	return cert, nil
}

func (f *CertificateFetcher) download(ctx context.Context, certURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build certificate request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrCertificateUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCertificateBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrCertificateUnavailable, err)
	}

	xslog.FromContext(ctx).DebugContext(ctx, "downloaded signing certificate",
		xslog.CertURL(certURL),
		xslog.Bytes(len(data)))

	return data, nil
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errNoCertificate
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		return cert, nil
	}
}
