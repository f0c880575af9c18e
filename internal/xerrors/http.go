package xerrors

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/garrettladley/sesgate/internal/xcontext"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
	go_json "github.com/goccy/go-json"
)

type errorResponse struct {
	Error     string `json:"error,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError renders err as JSON. Anything that is not an *Error becomes a 500
// whose cause is logged but never sent.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := As(err)
	if appErr == nil {
		appErr = Internal(WithCause(err))
	}

	logError(ctx, appErr)

	xhttp.SetHeaderContentTypeApplicationJSON(w)
	if appErr.RetryAfter > 0 {
		xhttp.SetHeaderRetryAfter(w, appErr.RetryAfter)
	}
	if appErr.Reason != "" {
		w.Header().Set(xhttp.XRateLimitReason, appErr.Reason)
	}

	w.WriteHeader(appErr.StatusCode)

	resp := errorResponse{Error: appErr.Code, Message: appErr.Message}
	resp.RequestID, _ = xcontext.GetRequestID(ctx)

	_ = go_json.NewEncoder(w).Encode(resp)
}

func logError(ctx context.Context, err *Error) {
	logger := xslog.FromContext(ctx)
	attrs := []any{
		xslog.HTTPStatus(err.StatusCode),
		slog.String("message", err.Message),
	}
	if err.Code != "" {
		attrs = append(attrs, slog.String("code", err.Code))
	}
	if err.Cause != nil {
		attrs = append(attrs, xslog.Error(err.Cause))
	}
	if err.RetryAfter > 0 {
		attrs = append(attrs, slog.Duration("retry_after", err.RetryAfter))
	}
	if err.Reason != "" {
		attrs = append(attrs, xslog.Reason(err.Reason))
	}

	switch {
	case xcontext.IsShutdownInProgress(ctx):
		logger.InfoContext(ctx, "rejected while draining", attrs...)
	case err.StatusCode/100 == 5:
		logger.ErrorContext(ctx, "server error", attrs...)
	case err.StatusCode/100 == 4:
		logger.WarnContext(ctx, "client error", attrs...)
	default:
		logger.InfoContext(ctx, "error response", attrs...)
	}
}
