package ingress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/garrettladley/sesgate/internal/sns"
)

const (
	DefaultConfirmTimeout = 10 * time.Second

	maxConfirmResponseBytes = 64 << 10
)

// Confirmer completes the subscription handshake by visiting SubscribeURL.
type Confirmer struct {
	client  *http.Client
	policy  *sns.HostPolicy
	timeout time.Duration
}

func NewConfirmer(client *http.Client, policy *sns.HostPolicy, timeout time.Duration) *Confirmer {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Confirmer{
		client:  client,
		policy:  policy,
		timeout: timeout,
	}
}

// Confirm issues exactly one GET. A URL outside the signing hosts is refused
// without a request. Failures are returned, not logged; the HTTP layer logs
// the rejected request once.
func (c *Confirmer) Confirm(ctx context.Context, rawURL string) error {
	u, err := c.policy.Check(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfirmURLNotAllowed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfirmURLNotAllowed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &RejectedError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxConfirmResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{StatusCode: resp.StatusCode}
	}
	return nil
}
