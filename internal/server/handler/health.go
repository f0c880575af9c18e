package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/garrettladley/sesgate/internal/version"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	deps map[string]Pinger
}

// NewHealth reports healthy only while every named dependency answers a ping.
func NewHealth(deps map[string]Pinger) *Health {
	return &Health{deps: deps}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HandleHealth handles GET /health requests.
func (h *Health) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: version.Get()}
	if len(h.deps) > 0 {
		resp.Checks = make(map[string]string, len(h.deps))
	}

	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "ok" {
		xslog.FromContext(ctx).WarnContext(ctx, "health check degraded", slog.Any("checks", resp.Checks))
		xhttp.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	xhttp.WriteOK(w, resp)
}
