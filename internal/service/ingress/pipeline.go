package ingress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/garrettladley/sesgate/internal/ses"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
)

type Authenticator interface {
	Authenticate(ctx context.Context, body []byte, headers http.Header) (sns.Notification, error)
}

type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, url string) error
}

type ContentResolver interface {
	Resolve(ctx context.Context, c ses.DeliveryContent) ([]byte, error)
}

type Processor struct {
	auth     Authenticator
	confirm  SubscriptionConfirmer
	resolver ContentResolver
	sink     storage.InboundEmailStore
	now      func() time.Time
}

var _ Service = (*Processor)(nil)

func NewProcessor(auth Authenticator, confirm SubscriptionConfirmer, resolver ContentResolver, sink storage.InboundEmailStore) *Processor {
	return &Processor{
		auth:     auth,
		confirm:  confirm,
		resolver: resolver,
		sink:     sink,
		now:      time.Now,
	}
}

func (p *Processor) ProcessNotification(ctx context.Context, req ProcessRequest) (Result, error) {
	if !acceptedContentType(req.ContentType) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, req.ContentType)
	}

	n, err := p.auth.Authenticate(ctx, req.Body, req.headers())
	if err != nil {
		return Result{}, err
	}

	ctx = xslog.WithAttrs(ctx, xslog.NotificationGroup(n.MessageID, n.TopicARN, n.Type))
	logger := xslog.FromContext(ctx)

	switch action := ses.Decode(n).(type) {
	case ses.ConfirmSubscription:
		if err := p.confirm.Confirm(ctx, action.URL); err != nil {
			return Result{}, err
		}
		logger.InfoContext(ctx, "confirmed SNS subscription")
		return Result{Outcome: OutcomeConfirmed}, nil

	case ses.Deliver:
		id, err := p.deliver(ctx, n, action.Content)
		if err != nil {
			return Result{}, err
		}
		logger.InfoContext(ctx, "ingested inbound email",
			xslog.InboundEmailID(id),
			xslog.Outcome(string(OutcomeDelivered)))
		return Result{Outcome: OutcomeDelivered, InboundEmailID: id}, nil

	case ses.Ignore:
		logger.InfoContext(ctx, "ignoring notification",
			xslog.Reason(string(action.Reason)),
			xslog.Outcome(string(OutcomeIgnored)))
		logger.DebugContext(ctx, "ignored notification envelope", xslog.Envelope(n.Raw()))
		return Result{Outcome: OutcomeIgnored, Reason: action.Reason}, nil

	default:
		return Result{Outcome: OutcomeIgnored, Reason: ses.ReasonUnsupportedKind}, nil
	}
}

func (p *Processor) deliver(ctx context.Context, n sns.Notification, content ses.DeliveryContent) (string, error) {
	raw, err := p.resolver.Resolve(ctx, content)
	if err != nil {
		return "", err
	}

	email := storage.NewInboundEmail(raw, n.MessageID, n.TopicARN, content.MailMessageID, p.now())
	id, err := p.sink.CreateInboundEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	return id, nil
}

func (r ProcessRequest) headers() http.Header {
	h := make(http.Header, 2)
	if r.MessageType != "" {
		h.Set(sns.HeaderMessageType, r.MessageType)
	}
	if r.TopicARN != "" {
		h.Set(sns.HeaderTopicARN, r.TopicARN)
	}
	return h
}

// SNS posts text/plain; JSON is accepted for replays and tooling.
func acceptedContentType(mediaType string) bool {
	switch mediaType {
	case "", xhttp.MIMETextPlain, xhttp.MIMEApplicationJSON:
		return true
	default:
		return false
	}
}
