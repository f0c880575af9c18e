package sns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garrettladley/sesgate/internal/xslog"
)

const (
	HeaderMessageType = "X-Amz-Sns-Message-Type"
	HeaderMessageID   = "X-Amz-Sns-Message-Id"
	HeaderTopicARN    = "X-Amz-Sns-Topic-Arn"
)

// Authenticator accepts a raw delivery only if it parses, names an allow-listed
// topic and carries a valid signature from the signing authority.
type Authenticator struct {
	topics map[string]struct{}
	certs  CertificateSource
	now    func() time.Time
}

type AuthenticatorOption func(*Authenticator)

// WithClock overrides the time used to check certificate validity.
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

func NewAuthenticator(topics []string, certs CertificateSource, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		topics: make(map[string]struct{}, len(topics)),
		certs:  certs,
		now:    time.Now,
	}
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			a.topics[t] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Topics reports how many topics are accepted.
func (a *Authenticator) Topics() int { return len(a.topics) }

// Authenticate returns ErrMalformed, ErrUnknownTopic or ErrBadSignature (each
// possibly wrapping a cause). ErrCertificateUnavailable is returned unwrapped
// so callers can ask SNS to redeliver. The topic is checked before any network
// call.
func (a *Authenticator) Authenticate(ctx context.Context, body []byte, headers http.Header) (Notification, error) {
	n, err := Parse(body)
	if err != nil {
		return Notification{}, err
	}

	if err := checkHeaders(n, headers); err != nil {
		return Notification{}, err
	}

	logger := xslog.FromContext(ctx)

	if _, ok := a.topics[n.TopicARN]; !ok {
		logger.WarnContext(ctx, "ignoring unknown topic", xslog.TopicARN(n.TopicARN))
		return Notification{}, fmt.Errorf("%w: %s", ErrUnknownTopic, n.TopicARN)
	}

	if n.Signature == "" || n.SigningCertURL == "" {
		return Notification{}, fmt.Errorf("%w: missing signature fields", ErrBadSignature)
	}

	cert, err := a.certs.Certificate(ctx, n.SigningCertURL)
	if errors.Is(err, ErrCertificateUnavailable) {
		return Notification{}, err
	}
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	if err := VerifySignature(n, cert, a.now()); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	return n, nil
}

// checkHeaders rejects deliveries whose unsigned routing headers contradict the
// signed body. Absent headers are fine; SNS only sends them on HTTP/S endpoints.
func checkHeaders(n Notification, headers http.Header) error {
	if headers == nil {
		return nil
	}
	if t := headers.Get(HeaderMessageType); t != "" && t != n.Type {
		return fmt.Errorf("%w: %s header %q does not match Type %q", ErrMalformed, HeaderMessageType, t, n.Type)
	}
	if arn := headers.Get(HeaderTopicARN); arn != "" && arn != n.TopicARN {
		return fmt.Errorf("%w: %s header does not match TopicArn", ErrMalformed, HeaderTopicARN)
	}
	return nil
}
