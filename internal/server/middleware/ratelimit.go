package middleware

import (
	"net/http"

	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xerrors"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
)

// RateLimitWithBackend applies IP-based rate limiting, keyed on
// xhttp.ClientIP. It fails open when the backend errors.
func RateLimitWithBackend(backend storage.RateLimiter, trustedHops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := xhttp.ClientIP(r, trustedHops)

			result, err := backend.Allow(ctx, ip)
			if err != nil {
				xslog.FromContext(ctx).ErrorContext(ctx, "rate limit check failed",
					xslog.ErrorGroup(err),
					xslog.IP(ip),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				xerrors.WriteError(ctx, w, xerrors.TooManyRequests(
					xerrors.WithCode("rate_limited"),
					xerrors.WithMessage("too many requests"),
					xerrors.WithRetryAfter(result.RetryAfter),
					xerrors.WithReason("ip_rate_limit"),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
