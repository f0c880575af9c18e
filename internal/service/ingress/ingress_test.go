package ingress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/sesgate/internal/objectstore"
	"github.com/garrettladley/sesgate/internal/ses"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/sns/snstest"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const confirmURL = "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription&TopicArn=arn:aws:sns:us-east-1:123456789012:inbound-mail&Token=abc"

type fakeFetcher struct {
	mu      sync.Mutex
	objects map[objectstore.Ref][]byte
	err     error
	calls   int
	closed  atomic.Int64
}

func (f *fakeFetcher) Fetch(_ context.Context, ref objectstore.Ref) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[ref]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return &trackingBody{Reader: bytes.NewReader(data), closed: &f.closed}, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type trackingBody struct {
	io.Reader
	closed *atomic.Int64
}

func (b *trackingBody) Close() error {
	b.closed.Add(1)
	return nil
}

type failingSink struct{}

func (failingSink) CreateInboundEmail(context.Context, storage.InboundEmail) (string, error) {
	return "", errors.New("connection refused")
}

type confirmEndpoint struct {
	status   int
	requests atomic.Int64
}

func (c *confirmEndpoint) RoundTrip(req *http.Request) (*http.Response, error) {
	c.requests.Add(1)
	return snstest.Response(req, c.status, []byte("<ConfirmSubscriptionResponse/>")), nil
}

type harness struct {
	signer   *snstest.Signer
	fetcher  *fakeFetcher
	confirm  *confirmEndpoint
	resolver *Resolver
	sink     *storage.MemoryInboundEmailStore
	proc     *Processor
}

func newHarness(t *testing.T, opts ...ResolverOption) *harness {
	t.Helper()

	signer := snstest.NewSigner(t)
	policy, err := sns.NewHostPolicy(nil)
	if err != nil {
		t.Fatalf("NewHostPolicy() error = %v", err)
	}

	cache := storage.NewMemoryBackend(100, 100)
	t.Cleanup(func() { _ = cache.Close() })

	certClient := xhttp.NewHTTPClient(xhttp.WithTransport(signer.Transport()))
	auth := sns.NewAuthenticator([]string{snstest.DefaultTopic}, sns.NewCertificateFetcher(certClient, cache, policy, time.Hour))

	endpoint := &confirmEndpoint{status: http.StatusOK}
	confirmer := NewConfirmer(xhttp.NewHTTPClient(xhttp.WithTransport(endpoint), xhttp.WithoutRedirects()), policy, time.Second)

	fetcher := &fakeFetcher{objects: make(map[objectstore.Ref][]byte)}
	resolver := NewResolver(fetcher, opts...)
	sink := storage.NewMemoryInboundEmailStore()

	return &harness{
		signer:   signer,
		fetcher:  fetcher,
		confirm:  endpoint,
		resolver: resolver,
		sink:     sink,
		proc:     NewProcessor(auth, confirmer, resolver, sink),
	}
}

func innerMessage(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := go_json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal inner message: %v", err)
	}
	return string(data)
}

func receivedInline(t *testing.T, content string) string {
	return innerMessage(t, map[string]any{
		"notificationType": "Received",
		"mail":             map[string]any{"messageId": "ses-inline", "commonHeaders": map[string]any{"messageId": "<inline@example.com>"}},
		"content":          content,
	})
}

func receivedInS3(t *testing.T, bucket, key string) string {
	return innerMessage(t, map[string]any{
		"notificationType": "Received",
		"mail":             map[string]any{"messageId": "ses-s3"},
		"receipt": map[string]any{
			"action": map[string]any{
				"type":       "S3",
				"topicArn":   "arn:aws:sns:eu-west-1:123456789012:s3-mail",
				"bucketName": bucket,
				"objectKey":  key,
			},
		},
	})
}

func (h *harness) process(t *testing.T, n sns.Notification) (Result, error) {
	t.Helper()
	return h.proc.ProcessNotification(t.Context(), ProcessRequest{
		Body:        h.signer.Envelope(t, n),
		MessageType: n.Type,
		ContentType: xhttp.MIMETextPlain,
	})
}

func (h *harness) storedRaw(t *testing.T, id string) string {
	t.Helper()
	e, err := h.sink.Get(t.Context(), id)
	if err != nil {
		t.Fatalf("sink.Get(%s) error = %v", id, err)
	}
	return string(e.Raw)
}

func TestProcessNotification_InlineDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	const raw = "From: sender@example.com\r\nTo: inbox@example.com\r\nSubject: hi\r\n\r\nhello"

	res, err := h.process(t, snstest.Notification(receivedInline(t, raw)))
	if err != nil {
		t.Fatalf("ProcessNotification() error = %v", err)
	}
	if res.Outcome != OutcomeDelivered || res.InboundEmailID == "" {
		t.Fatalf("ProcessNotification() = %+v, want delivered with id", res)
	}
	if got := h.storedRaw(t, res.InboundEmailID); got != raw {
		t.Errorf("stored raw = %q, want %q", got, raw)
	}
	if h.fetcher.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0 for inline content", h.fetcher.Calls())
	}

	e, _ := h.sink.Get(t.Context(), res.InboundEmailID)
	if e.MailMessageID != "<inline@example.com>" || e.TopicARN != snstest.DefaultTopic || e.SNSMessageID == "" {
		t.Errorf("stored metadata = %+v", e)
	}
}

func TestProcessNotification_StoredDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	raw := "From: big@example.com\r\n\r\n" + strings.Repeat("x", 300<<10)
	ref := objectstore.Ref{Bucket: "mail-bucket", Key: "inbound/ses-s3", Region: "eu-west-1"}
	h.fetcher.objects[ref] = []byte(raw)

	res, err := h.process(t, snstest.Notification(receivedInS3(t, ref.Bucket, ref.Key)))
	if err != nil {
		t.Fatalf("ProcessNotification() error = %v", err)
	}
	if res.Outcome != OutcomeDelivered {
		t.Fatalf("Outcome = %s, want delivered", res.Outcome)
	}
	if got := h.storedRaw(t, res.InboundEmailID); got != raw {
		t.Errorf("stored raw differs from object content (len %d vs %d)", len(got), len(raw))
	}
	if h.fetcher.Calls() != 1 {
		t.Errorf("fetch calls = %d, want exactly 1", h.fetcher.Calls())
	}
	if h.fetcher.closed.Load() != 1 {
		t.Errorf("object body closed %d times, want 1", h.fetcher.closed.Load())
	}
	if n := h.resolver.leased.Load(); n != 0 {
		t.Errorf("leased buffers = %d, want 0", n)
	}
}

func TestProcessNotification_StorageFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.process(t, snstest.Notification(receivedInS3(t, "mail-bucket", "missing")))
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("ProcessNotification() error = %v, want ErrStorageFailure", err)
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error %T is not a *StorageError", err)
	}
	want := objectstore.Ref{Bucket: "mail-bucket", Key: "missing", Region: "eu-west-1"}
	if diff := cmp.Diff(want, storageErr.Ref); diff != "" {
		t.Errorf("StorageError.Ref mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("cause not preserved: %v", err)
	}
	if len(h.sink.IDs()) != 0 {
		t.Error("sink written despite storage failure")
	}
	if n := h.resolver.leased.Load(); n != 0 {
		t.Errorf("leased buffers = %d, want 0", n)
	}
}

func TestProcessNotification_NoContent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.process(t, snstest.Notification(innerMessage(t, map[string]any{"notificationType": "Received"})))
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("ProcessNotification() error = %v, want ErrNoContent", err)
	}
	if len(h.sink.IDs()) != 0 {
		t.Error("sink written for empty content")
	}
}

func TestProcessNotification_Ignored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		n          sns.Notification
		wantReason ses.Reason
	}{
		{
			name:       "malformed inner payload",
			n:          snstest.Notification("{definitely not json"),
			wantReason: ses.ReasonMalformedInnerPayload,
		},
		{
			name:       "bounce",
			n:          snstest.Notification(`{"notificationType":"Bounce"}`),
			wantReason: ses.ReasonBounce,
		},
		{
			name:       "complaint",
			n:          snstest.Notification(`{"notificationType":"Complaint"}`),
			wantReason: ses.ReasonComplaint,
		},
		{
			name:       "delivery receipt",
			n:          snstest.Notification(`{"notificationType":"Delivery"}`),
			wantReason: ses.ReasonUnsupportedType,
		},
		{
			name: "unsubscribe confirmation",
			n: func() sns.Notification {
				n := snstest.Confirmation("https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription")
				n.Type = string(sns.KindUnsubscribeConfirmation)
				return n
			}(),
			wantReason: ses.ReasonUnsubscribe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			res, err := h.process(t, tt.n)
			if err != nil {
				t.Fatalf("ProcessNotification() error = %v", err)
			}
			want := Result{Outcome: OutcomeIgnored, Reason: tt.wantReason}
			if diff := cmp.Diff(want, res); diff != "" {
				t.Errorf("ProcessNotification() mismatch (-want +got):\n%s", diff)
			}
			if len(h.sink.IDs()) != 0 || h.fetcher.Calls() != 0 || h.confirm.requests.Load() != 0 {
				t.Error("ignored notification caused a side effect")
			}
		})
	}
}

func TestProcessNotification_UnknownTopicHasNoSideEffects(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	n := snstest.Notification(receivedInS3(t, "mail-bucket", "k"))
	n.TopicARN = "arn:aws:sns:us-east-1:999999999999:not-ours"

	_, err := h.process(t, n)
	if !errors.Is(err, sns.ErrUnknownTopic) {
		t.Fatalf("ProcessNotification() error = %v, want ErrUnknownTopic", err)
	}
	if h.signer.Fetches() != 0 || h.fetcher.Calls() != 0 || len(h.sink.IDs()) != 0 {
		t.Error("unknown topic caused a side effect")
	}
}

func TestProcessNotification_BadSignature(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	n := snstest.Notification(receivedInline(t, "original"))
	h.signer.Sign(t, &n)
	n.Message = receivedInline(t, "forged")

	_, err := h.proc.ProcessNotification(t.Context(), ProcessRequest{Body: snstest.Marshal(t, n)})
	if !errors.Is(err, sns.ErrBadSignature) {
		t.Fatalf("ProcessNotification() error = %v, want ErrBadSignature", err)
	}
	if len(h.sink.IDs()) != 0 {
		t.Error("forged message reached the sink")
	}
}

func TestProcessNotification_RedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	n := snstest.Notification(receivedInline(t, "From: a@example.com\r\n\r\nonce"))

	first, err := h.process(t, n)
	if err != nil {
		t.Fatalf("first ProcessNotification() error = %v", err)
	}
	second, err := h.process(t, n)
	if err != nil {
		t.Fatalf("second ProcessNotification() error = %v", err)
	}
	if first.InboundEmailID != second.InboundEmailID {
		t.Errorf("redelivery ids = %s, %s; want equal", first.InboundEmailID, second.InboundEmailID)
	}
	if len(h.sink.IDs()) != 1 {
		t.Errorf("sink holds %d emails, want 1", len(h.sink.IDs()))
	}
}

func TestProcessNotification_SinkFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.proc.sink = failingSink{}

	_, err := h.process(t, snstest.Notification(receivedInline(t, "x")))
	if !errors.Is(err, ErrSinkFailure) {
		t.Fatalf("ProcessNotification() error = %v, want ErrSinkFailure", err)
	}
}

func TestProcessNotification_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.proc.ProcessNotification(t.Context(), ProcessRequest{
		Body:        h.signer.Envelope(t, snstest.Notification("{}")),
		ContentType: "multipart/form-data",
	})
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("ProcessNotification() error = %v, want ErrUnsupportedMediaType", err)
	}
	if h.signer.Fetches() != 0 {
		t.Error("certificate fetched for a rejected content type")
	}
}

func TestProcessNotification_Confirmation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		url          string
		status       int
		wantErr      error
		wantStatus   int
		wantRequests int64
	}{
		{name: "accepted", url: confirmURL, status: http.StatusOK, wantRequests: 1},
		{name: "accepted with 204", url: confirmURL, status: http.StatusNoContent, wantRequests: 1},
		{name: "rejected", url: confirmURL, status: http.StatusForbidden, wantErr: ErrConfirmRejected, wantStatus: http.StatusForbidden, wantRequests: 1},
		{name: "redirect is not success", url: confirmURL, status: http.StatusFound, wantErr: ErrConfirmRejected, wantStatus: http.StatusFound, wantRequests: 1},
		{name: "foreign host", url: "https://attacker.example/?Action=ConfirmSubscription", status: http.StatusOK, wantErr: ErrConfirmURLNotAllowed},
		{name: "internal address", url: "http://169.254.169.254/latest/meta-data/", status: http.StatusOK, wantErr: ErrConfirmURLNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.confirm.status = tt.status

			res, err := h.process(t, snstest.Confirmation(tt.url))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ProcessNotification() error = %v", err)
				}
				if res.Outcome != OutcomeConfirmed {
					t.Errorf("Outcome = %s, want confirmed", res.Outcome)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ProcessNotification() error = %v, want %v", err, tt.wantErr)
			}

			if tt.wantStatus != 0 {
				var rejected *RejectedError
				if !errors.As(err, &rejected) || rejected.StatusCode != tt.wantStatus {
					t.Errorf("RejectedError status = %v, want %d", err, tt.wantStatus)
				}
			}
			if got := h.confirm.requests.Load(); got != tt.wantRequests {
				t.Errorf("confirmation requests = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func debugContext(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return xslog.WithLogger(t.Context(), logger), &buf
}

func TestProcessNotification_IgnoredEnvelopeIsLogged(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, buf := debugContext(t)

	body := h.signer.Envelope(t, snstest.Notification(`{"notificationType":"Bounce"}`))
	res, err := h.proc.ProcessNotification(ctx, ProcessRequest{Body: body, ContentType: xhttp.MIMETextPlain})
	if err != nil {
		t.Fatalf("ProcessNotification() error = %v", err)
	}
	if res.Outcome != OutcomeIgnored {
		t.Fatalf("Outcome = %s, want ignored", res.Outcome)
	}

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry struct {
			Envelope string `json:"envelope"`
		}
		if err := go_json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry.Envelope == string(body) {
			found = true
		}
	}
	if !found {
		t.Errorf("debug log does not carry the raw envelope:\n%s", buf.String())
	}
}

func TestConfirm_RejectionIsNotLogged(t *testing.T) {
	t.Parallel()

	policy, err := sns.NewHostPolicy(nil)
	if err != nil {
		t.Fatalf("NewHostPolicy() error = %v", err)
	}
	endpoint := &confirmEndpoint{status: http.StatusForbidden}
	c := NewConfirmer(xhttp.NewHTTPClient(xhttp.WithTransport(endpoint)), policy, time.Second)

	ctx, buf := debugContext(t)
	if err := c.Confirm(ctx, confirmURL); !errors.Is(err, ErrConfirmRejected) {
		t.Fatalf("Confirm() error = %v, want ErrConfirmRejected", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Confirm() logged %q, want nothing", buf.String())
	}
}
