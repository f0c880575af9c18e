package middleware

import (
	"net/http"
	"time"

	"github.com/garrettladley/sesgate/internal/xcontext"
	"github.com/garrettladley/sesgate/internal/xerrors"
)

// Drainer reports whether the server has stopped accepting new work.
type Drainer interface {
	Draining() bool
}

// ShutdownContext marks requests that arrive while the server is draining and
// answers them with 503 so the message bus redelivers to a healthy instance.
func ShutdownContext(d Drainer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !d.Draining() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := xcontext.SetShutdownInProgress(r.Context(), true)
			xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(
				xerrors.WithCode("shutting_down"),
				xerrors.WithMessage("server is shutting down"),
				xerrors.WithRetryAfter(5*time.Second),
			))
		})
	}
}
