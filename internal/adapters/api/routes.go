package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all routes with the provided mux.
// Health and metrics are always available. API routes are wrapped with
// protect, and are not registered when protect is nil.
func RegisterRoutes(mux *http.ServeMux, h *Handler, protect func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if protect == nil {
		slog.Info("API routes disabled")
		return
	}

	mux.Handle("POST /api/build", protect(http.HandlerFunc(h.HandleBuild)))
	mux.Handle("GET /api/queue", protect(http.HandlerFunc(h.HandleQueueStatus)))
	mux.Handle("POST /api/queue/flush", protect(http.HandlerFunc(h.HandleQueueFlush)))
	mux.Handle("POST /api/records/{recordId}/index", protect(http.HandlerFunc(h.HandleIndexRecord)))
	mux.Handle("POST /api/records/{recordId}/remove", protect(http.HandlerFunc(h.HandleRemoveRecord)))
	slog.Info("API routes enabled")
}
