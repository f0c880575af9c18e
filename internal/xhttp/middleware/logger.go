package middleware

import (
	"log/slog"
	"net/http"

	"github.com/garrettladley/sesgate/internal/xcontext"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const (
	headerSNSMessageType = "X-Amz-Sns-Message-Type"
	headerSNSTopicARN    = "X-Amz-Sns-Topic-Arn"
)

// Logger puts a request-scoped logger into the context, tagged with the
// request id and, when present, the SNS routing headers.
// Must run AFTER RequestID middleware.
func Logger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := make([]any, 0, 3)
			if id, ok := xcontext.GetRequestID(r.Context()); ok {
				attrs = append(attrs, xslog.RequestID(id))
			}
			if t := r.Header.Get(headerSNSMessageType); t != "" {
				attrs = append(attrs, xslog.MessageType(t))
			}
			if arn := r.Header.Get(headerSNSTopicARN); arn != "" {
				attrs = append(attrs, xslog.TopicARN(arn))
			}

			ctx := xslog.WithLogger(r.Context(), base.With(attrs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
