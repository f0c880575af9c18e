package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garrettladley/sesgate/internal/service/ingress"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/sns/snstest"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xhttp"
	go_json "github.com/goccy/go-json"
)

type stack struct {
	signer  *snstest.Signer
	sink    *storage.MemoryInboundEmailStore
	drainer *ShutdownCoordinator
	handler http.Handler
}

func newStack(t *testing.T, limit int) *stack {
	t.Helper()

	signer := snstest.NewSigner(t)
	policy, err := sns.NewHostPolicy(nil)
	if err != nil {
		t.Fatalf("NewHostPolicy() error = %v", err)
	}

	backend := storage.NewMemoryBackend(0.001, limit)
	t.Cleanup(func() { _ = backend.Close() })

	certs := sns.NewCertificateFetcher(xhttp.NewHTTPClient(xhttp.WithTransport(signer.Transport())), backend, policy, time.Hour)
	auth := sns.NewAuthenticator([]string{snstest.DefaultTopic}, certs)
	confirmer := ingress.NewConfirmer(xhttp.NewHTTPClient(xhttp.WithoutRedirects()), policy, time.Second)
	sink := storage.NewMemoryInboundEmailStore()
	drainer := NewShutdownCoordinator(0)

	return &stack{
		signer:  signer,
		sink:    sink,
		drainer: drainer,
		handler: NewHandler(Deps{
			Ingress:      ingress.NewProcessor(auth, confirmer, ingress.NewResolver(nil), sink),
			Limiter:      backend,
			Drainer:      drainer,
			Health:       nil,
			MaxBodyBytes: 64 << 10,
		}),
	}
}

func (s *stack) postRaw(t *testing.T, path string, body []byte, n sns.Notification) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(xhttp.ContentType, "text/plain; charset=UTF-8")
	req.Header.Set(sns.HeaderMessageType, n.Type)
	req.Header.Set(sns.HeaderMessageID, n.MessageID)
	req.Header.Set(sns.HeaderTopicARN, n.TopicARN)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// post signs n and delivers it the way SNS does.
func (s *stack) post(t *testing.T, path string, n sns.Notification) *httptest.ResponseRecorder {
	t.Helper()
	return s.postRaw(t, path, s.signer.Envelope(t, n), n)
}

func received(t *testing.T, content string) string {
	t.Helper()
	data, err := go_json.Marshal(map[string]any{
		"notificationType": "Received",
		"mail":             map[string]any{"messageId": "ses-route"},
		"content":          content,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestNewHandler_Delivery(t *testing.T) {
	t.Parallel()

	for _, path := range []string{PathInbound, PathInboundLegacy} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			s := newStack(t, 10)
			rec := s.post(t, path, snstest.Notification(received(t, "Subject: hi\r\n\r\nbody")))

			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusNoContent, rec.Body)
			}
			if got := rec.Header().Get(xhttp.XRequestID); got != "a1b2c3d4-0000-4000-8000-000000000001" {
				t.Errorf("%s = %q, want the SNS message id", xhttp.XRequestID, got)
			}
			if got := len(s.sink.IDs()); got != 1 {
				t.Errorf("stored emails = %d, want 1", got)
			}
		})
	}
}

func TestNewHandler_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	s := newStack(t, 10)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathInbound, nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestNewHandler_BodyTooLarge(t *testing.T) {
	t.Parallel()

	s := newStack(t, 10)
	rec := s.postRaw(t, PathInbound, bytes.Repeat([]byte("x"), 65<<10), snstest.Notification("x"))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestNewHandler_RateLimited(t *testing.T) {
	t.Parallel()

	s := newStack(t, 1)
	n := snstest.Notification(received(t, "body"))

	if rec := s.post(t, PathInbound, n); rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec := s.post(t, PathInbound, n)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
}

func TestNewHandler_Draining(t *testing.T) {
	t.Parallel()

	s := newStack(t, 10)
	s.drainer.InitiateShutdown()

	rec := s.post(t, PathInbound, snstest.Notification(received(t, "body")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := len(s.sink.IDs()); got != 0 {
		t.Errorf("stored emails = %d, want 0", got)
	}
}

func TestNewHandler_IngressDisabled(t *testing.T) {
	t.Parallel()

	h := NewHandler(Deps{MaxBodyBytes: 1 << 10})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PathInbound, bytes.NewReader([]byte("{}"))))
	if rec.Code != http.StatusNotFound {
		t.Errorf("inbound status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathHealth, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestNewHandler_CertificateHostDown(t *testing.T) {
	t.Parallel()

	s := newStack(t, 10)
	n := snstest.Notification(received(t, "body"))
	n.SigningCertURL = "https://sns.us-east-1.amazonaws.com/unreachable.pem"

	rec := s.post(t, PathInbound, n)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusServiceUnavailable, rec.Body)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if got := len(s.sink.IDs()); got != 0 {
		t.Errorf("stored emails = %d, want 0", got)
	}
}
