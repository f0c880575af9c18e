package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garrettladley/sesgate/internal/service/ingress"
	"github.com/garrettladley/sesgate/internal/sns"
	go_json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

type fakeService struct {
	result ingress.Result
	err    error
	got    ingress.ProcessRequest
}

func (f *fakeService) ProcessNotification(_ context.Context, req ingress.ProcessRequest) (ingress.Result, error) {
	f.got = req
	return f.result, f.err
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := go_json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestHandleNotification_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     ingress.Result
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "confirmed",
			result:     ingress.Result{Outcome: ingress.OutcomeConfirmed},
			wantStatus: http.StatusOK,
		},
		{
			name:       "delivered",
			result:     ingress.Result{Outcome: ingress.OutcomeDelivered, InboundEmailID: "a1"},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "ignored",
			result:     ingress.Result{Outcome: ingress.OutcomeIgnored},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "malformed",
			err:        fmt.Errorf("%w: not json", sns.ErrMalformed),
			wantStatus: http.StatusBadRequest,
			wantCode:   "malformed_notification",
		},
		{
			name:       "unsupported content type",
			err:        ingress.ErrUnsupportedMediaType,
			wantStatus: http.StatusBadRequest,
			wantCode:   "unsupported_content_type",
		},
		{
			name:       "no content",
			err:        ingress.ErrNoContent,
			wantStatus: http.StatusBadRequest,
			wantCode:   "no_content",
		},
		{
			name:       "unknown topic",
			err:        sns.ErrUnknownTopic,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unknown_topic",
		},
		{
			name:       "bad signature",
			err:        fmt.Errorf("%w: verification error", sns.ErrBadSignature),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_signature",
		},
		{
			name:       "certificate unavailable",
			err:        fmt.Errorf("%w: %w", sns.ErrCertificateUnavailable, context.DeadlineExceeded),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "certificate_unavailable",
		},
		{
			name:       "confirmation url not allowed",
			err:        ingress.ErrConfirmURLNotAllowed,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "confirmation_url_not_allowed",
		},
		{
			name:       "confirmation rejected",
			err:        &ingress.RejectedError{StatusCode: http.StatusForbidden},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "confirmation_rejected",
		},
		{
			name:       "storage failure",
			err:        &ingress.StorageError{Cause: errors.New("timeout")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "storage_failure",
		},
		{
			name:       "sink failure",
			err:        fmt.Errorf("%w: connection refused", ingress.ErrSinkFailure),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "sink_failure",
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewInbound(&fakeService{result: tt.result, err: tt.err})
			rec := httptest.NewRecorder()
			h.HandleNotification(rec, httptest.NewRequest(http.MethodPost, "/inbound-notifications", strings.NewReader("{}")))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("error code = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}

func TestHandleNotification_ForwardsRequest(t *testing.T) {
	t.Parallel()

	svc := &fakeService{result: ingress.Result{Outcome: ingress.OutcomeIgnored}}
	h := NewInbound(svc)

	req := httptest.NewRequest(http.MethodPost, "/inbound-notifications", strings.NewReader(`{"Type":"Notification"}`))
	req.Header.Set("Content-Type", "text/plain; charset=UTF-8")
	req.Header.Set(sns.HeaderMessageType, "Notification")
	req.Header.Set(sns.HeaderTopicARN, "arn:aws:sns:us-east-1:123456789012:inbound-mail")
	h.HandleNotification(httptest.NewRecorder(), req)

	want := ingress.ProcessRequest{
		Body:        []byte(`{"Type":"Notification"}`),
		MessageType: "Notification",
		TopicARN:    "arn:aws:sns:us-east-1:123456789012:inbound-mail",
		ContentType: "text/plain",
	}
	if diff := cmp.Diff(want, svc.got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleNotification_NotConfigured(t *testing.T) {
	t.Parallel()

	h := NewInbound(nil)
	rec := httptest.NewRecorder()
	h.HandleNotification(rec, httptest.NewRequest(http.MethodPost, "/inbound-notifications", strings.NewReader("{}")))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := errorCode(t, rec); got != "ingress_not_configured" {
		t.Errorf("error code = %q, want ingress_not_configured", got)
	}
}

func TestHandleNotification_BodyTooLarge(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	h := NewInbound(svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbound-notifications", strings.NewReader(strings.Repeat("x", 64)))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	h.HandleNotification(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if svc.got.Body != nil {
		t.Error("service called for an oversized body")
	}
}
