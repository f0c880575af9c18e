package server

import (
	"log/slog"
	"net/http"

	"github.com/garrettladley/sesgate/internal/server/handler"
	servermw "github.com/garrettladley/sesgate/internal/server/middleware"
	"github.com/garrettladley/sesgate/internal/service/ingress"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xhttp/middleware"
)

const (
	PathInbound       = "/inbound-notifications"
	PathInboundLegacy = "/rails/action_mailbox/amazon/inbound_emails"
	PathHealth        = "/health"
)

type Deps struct {
	Logger *slog.Logger
	// Ingress is nil when no topic is configured.
	Ingress      ingress.Service
	Limiter      storage.RateLimiter
	Drainer      middleware.Drainer
	Health       map[string]handler.Pinger
	MaxBodyBytes int64
	// TrustedProxyHops is the number of reverse proxies that append to
	// X-Forwarded-For in front of the server.
	TrustedProxyHops int
}

// NewHandler builds the full middleware stack and route table.
func NewHandler(d Deps) http.Handler {
	inbound := handler.NewInbound(d.Ingress)
	health := handler.NewHealth(d.Health)

	inboundMux := http.NewServeMux()
	inboundMux.HandleFunc("POST "+PathInbound, inbound.HandleNotification)
	inboundMux.HandleFunc("POST "+PathInboundLegacy, inbound.HandleNotification)

	inboundStack := []func(http.Handler) http.Handler{
		middleware.MaxBytes(d.MaxBodyBytes),
	}
	if d.Limiter != nil {
		inboundStack = append(inboundStack, servermw.RateLimitWithBackend(d.Limiter, d.TrustedProxyHops))
	}
	inboundWrapped := middleware.Chain(inboundMux, inboundStack...)

	mux := http.NewServeMux()
	mux.Handle(PathInbound, inboundWrapped)
	mux.Handle(PathInboundLegacy, inboundWrapped)
	mux.HandleFunc("GET "+PathHealth, health.HandleHealth)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stack := []func(http.Handler) http.Handler{
		middleware.RequestID(middleware.WithIDFromHeader(sns.HeaderMessageID)),
		middleware.Logger(logger),
		middleware.Recovery,
		middleware.Logging,
	}
	if d.Drainer != nil {
		stack = append(stack, middleware.ShutdownContext(d.Drainer))
	}
	stack = append(stack, middleware.SecurityHeaders)

	return middleware.Chain(mux, stack...)
}
