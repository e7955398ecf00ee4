package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/inboxpilot/otp-relay/internal/httputil"
	"github.com/inboxpilot/otp-relay/internal/logging"
	"github.com/inboxpilot/otp-relay/internal/models"
	"github.com/inboxpilot/otp-relay/internal/ratelimit"
	"github.com/inboxpilot/otp-relay/internal/registry"
	"github.com/inboxpilot/otp-relay/internal/service"
)

// RelayService is the surface the handlers need from the service layer.
type RelayService interface {
	HandleInbound(ctx context.Context, env *models.WebhookEnvelope) (*models.WebhookResponse, error)
	Consume(ctx context.Context, filter registry.Filter) *models.CodeResponse
	ListCodes() *models.ListResponse
	UseCode(id string) bool
	Stats() *models.StatsResponse
}

// Handler serves the relay's HTTP API.
type Handler struct {
	service     RelayService
	rateLimiter ratelimit.RateLimiter
	logger      *logging.Logger

	// devMode controls whether 500 responses carry error detail.
	devMode bool
}

// NewHandler creates a Handler. rateLimiter may be nil (no limiting).
func NewHandler(svc RelayService, rl ratelimit.RateLimiter, logger *logging.Logger, devMode bool) *Handler {
	if rl == nil {
		rl = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: svc, rateLimiter: rl, logger: logger, devMode: devMode}
}

// HandleWebhook receives a 2FA push, verifies it and runs extraction.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.allow(w, r) {
		return
	}

	var env models.WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	defer r.Body.Close()

	resp, err := h.service.HandleInbound(r.Context(), &env)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			h.logger.WarnContext(r.Context(), "webhook rejected",
				logging.IP(httputil.GetClientIP(r)),
			)
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.internalError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleLatest consumes the most recent code matching the query filter.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.allow(w, r) {
		return
	}

	q := r.URL.Query()
	filter := registry.Filter{
		Platform:      q.Get("platform"),
		MaxAge:        time.Duration(httputil.ParseIntParam(q.Get("maxAge"), 300)) * time.Second,
		MinConfidence: httputil.ParseFloatParam(q.Get("minConfidence"), registry.DefaultMinConfidence),
	}

	httputil.WriteJSON(w, http.StatusOK, h.service.Consume(r.Context(), filter))
}

// HandleList returns record metadata with aggregate stats. The code
// values themselves are excluded by the model's JSON tags.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.service.ListCodes())
}

// HandleUse manually marks a code used.
func (h *Handler) HandleUse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := r.PathValue("id")
	if id == "" || !h.service.UseCode(id) {
		httputil.WriteError(w, http.StatusNotFound, "code not found")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleStats reports registry statistics and uptime.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Stats())
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// allow applies per-IP rate limiting. A limiter failure fails open.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	ip := httputil.GetClientIP(r)
	allowed, err := h.rateLimiter.Allow(r.Context(), ip)
	if err != nil {
		h.logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
		return true
	}
	if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// internalError returns a 500, redacting detail outside development mode.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "unhandled request failure", logging.Error(err))
	msg := "internal server error"
	if h.devMode {
		msg = err.Error()
	}
	httputil.WriteError(w, http.StatusInternalServerError, msg)
}
