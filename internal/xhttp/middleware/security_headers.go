package middleware

import (
	"net/http"

	"github.com/garrettladley/sesgate/internal/xhttp"
)

// SecurityHeaders marks every response as non-cacheable JSON that must not be
// sniffed or framed.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set(xhttp.XContentTypeOpts, "nosniff")
		h.Set(xhttp.XFrameOpts, "DENY")
		h.Set(xhttp.CacheControl, "no-store")
		h.Set(xhttp.ReferrerPolicy, "no-referrer")
		next.ServeHTTP(w, r)
	})
}
