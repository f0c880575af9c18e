package xhttp

import (
	"net"
	"net/http"
	"strings"
)

// GetRequestIP prefers the left-most X-Forwarded-For hop (the original client)
// over the socket peer. The caller controls that header, so use it for logs
// only; ClientIP is the value to key limits on.
func GetRequestIP(r *http.Request) string {
	if xff := r.Header.Get(XForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return stripPort(strings.TrimSpace(first))
	}
	return stripPort(r.RemoteAddr)
}

// ClientIP returns the address appended by the outermost of trustedHops
// reverse proxies. With no trusted proxies it is the socket peer, and any
// X-Forwarded-For is ignored.
func ClientIP(r *http.Request, trustedHops int) string {
	if trustedHops <= 0 {
		return stripPort(r.RemoteAddr)
	}
	xff := r.Header.Values(XForwardedFor)
	if len(xff) == 0 {
		return stripPort(r.RemoteAddr)
	}
	hops := strings.Split(strings.Join(xff, ","), ",")
	i := max(len(hops)-trustedHops, 0)
	return stripPort(strings.TrimSpace(hops[i]))
}

func stripPort(addr string) string {
	if ip, _, err := net.SplitHostPort(addr); err == nil {
		return ip
	}
	return addr
}
