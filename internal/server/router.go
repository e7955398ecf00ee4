package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inboxpilot/otp-relay/internal/handlers"
	"github.com/inboxpilot/otp-relay/internal/middleware"
)

// NewRouter constructs a ServeMux with the relay API routes registered.
func NewRouter(h *handlers.Handler, cors middleware.CORSConfig) http.Handler {
	mux := http.NewServeMux()

	// Email webhook ingestion
	mux.HandleFunc("/webhook/2fa", h.HandleWebhook)

	// Retrieval API
	mux.HandleFunc("/api/code/latest", h.HandleLatest)
	mux.HandleFunc("/api/codes", h.HandleList)
	mux.HandleFunc("/api/code/{id}/use", h.HandleUse)
	mux.HandleFunc("/api/stats", h.HandleStats)

	// Health endpoint
	mux.HandleFunc("/health", h.HandleHealth)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(cors)(mux))
}
