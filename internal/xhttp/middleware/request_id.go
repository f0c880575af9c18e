package middleware

import (
	"net/http"

	"github.com/garrettladley/sesgate/internal/xcontext"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/google/uuid"
)

type RequestIDMiddleware struct {
	IDFunc func(*http.Request) string
}

type RequestIDOption func(*RequestIDMiddleware)

// WithIDFromHeader reuses an upstream identifier (for example X-Amz-Sns-Message-Id)
// when the request carries one.
func WithIDFromHeader(header string) RequestIDOption {
	return func(m *RequestIDMiddleware) {
		fallback := m.IDFunc
		m.IDFunc = func(r *http.Request) string {
			if id := r.Header.Get(header); id != "" {
				return id
			}
			return fallback(r)
		}
	}
}

func RequestID(opts ...RequestIDOption) func(http.Handler) http.Handler {
	middleware := &RequestIDMiddleware{
		IDFunc: func(_ *http.Request) string {
			return uuid.New().String()
		},
	}

	for _, opt := range opts {
		opt(middleware)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.IDFunc(r)
			ctx := xcontext.SetRequestID(r.Context(), id)
			xhttp.SetHeaderRequestID(w, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
