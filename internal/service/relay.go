// Package service composes the verifier, extractor and registry into the
// relay's ingestion and consumption flows.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/inboxpilot/otp-relay/internal/events"
	"github.com/inboxpilot/otp-relay/internal/extractor"
	"github.com/inboxpilot/otp-relay/internal/logging"
	"github.com/inboxpilot/otp-relay/internal/metrics"
	"github.com/inboxpilot/otp-relay/internal/models"
	"github.com/inboxpilot/otp-relay/internal/registry"
	"github.com/inboxpilot/otp-relay/internal/webhook"
)

// ErrUnauthorized is returned when a push fails signature or freshness
// verification. The boundary maps it to 401 with no state change.
var ErrUnauthorized = errors.New("webhook verification failed")

// RelayService wires the extraction pipeline to the code registry.
type RelayService struct {
	verifier  *webhook.Verifier
	extractor *extractor.Extractor
	registry  *registry.Registry
	publisher *events.Publisher
	logger    *logging.Logger

	// skipVerification bypasses the authenticity gate. Development only.
	skipVerification bool

	startedAt time.Time
}

// New creates a RelayService. publisher may be nil (events disabled).
func New(v *webhook.Verifier, e *extractor.Extractor, r *registry.Registry, p *events.Publisher, skipVerification bool, logger *logging.Logger) *RelayService {
	if logger == nil {
		logger = logging.Default()
	}
	return &RelayService{
		verifier:         v,
		extractor:        e,
		registry:         r,
		publisher:        p,
		logger:           logger,
		skipVerification: skipVerification,
		startedAt:        time.Now(),
	}
}

// HandleInbound verifies a push, extracts a code and stores it. A failed
// verification returns ErrUnauthorized with no state change; a negative
// extraction is a normal outcome carried in the response.
func (s *RelayService) HandleInbound(ctx context.Context, env *models.WebhookEnvelope) (*models.WebhookResponse, error) {
	if !s.skipVerification {
		if !s.verifier.VerifyWebhook(env.Token, env.Timestamp, env.Signature) {
			metrics.WebhooksTotal.WithLabelValues("unauthorized").Inc()
			return nil, ErrUnauthorized
		}
	}

	result := s.extractor.Extract(ctx, env.Subject, env.Body(), env.Sender)
	if !result.Success {
		metrics.WebhooksTotal.WithLabelValues("no_code").Inc()
		s.logger.InfoContext(ctx, "no code extracted",
			logging.Platform(result.Platform),
			slog.String("reasoning", result.Reasoning),
		)
		return &models.WebhookResponse{
			Success:   false,
			Reasoning: result.Reasoning,
			Error:     result.Error,
		}, nil
	}

	raw, err := json.Marshal(env)
	if err != nil {
		raw = nil
	}

	id, err := s.registry.Store(result.Code, result.Platform, env.Sender, env.Subject, result.Confidence, raw)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("store_failed").Inc()
		return nil, err
	}
	metrics.WebhooksTotal.WithLabelValues("stored").Inc()

	s.logger.InfoContext(ctx, "verification code stored",
		logging.CodeID(id),
		logging.Platform(result.Platform),
		slog.Float64("confidence", result.Confidence),
	)

	event := &events.CodeStoredEvent{
		CodeID:     id,
		Platform:   result.Platform,
		Confidence: result.Confidence,
	}
	if stored, err := s.registry.GetByID(id); err == nil {
		event.ExpiresAt = stored.ExpiresAt
	}
	if err := s.publisher.PublishCodeStored(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish code stored event", logging.Error(err))
	}

	return &models.WebhookResponse{
		Success:    true,
		CodeID:     id,
		Platform:   result.Platform,
		Confidence: result.Confidence,
	}, nil
}

// Consume atomically selects and marks one matching code. A miss is a
// normal outcome carried in the response, never logged as an error.
func (s *RelayService) Consume(ctx context.Context, filter registry.Filter) *models.CodeResponse {
	code, err := s.registry.GetLatest(filter)
	if err != nil {
		return &models.CodeResponse{Success: false, Error: err.Error()}
	}

	s.logger.InfoContext(ctx, "verification code consumed",
		logging.CodeID(code.ID),
		logging.Platform(code.Platform),
	)

	if err := s.publisher.PublishCodeConsumed(ctx, &events.CodeConsumedEvent{
		CodeID:   code.ID,
		Platform: code.Platform,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish code consumed event", logging.Error(err))
	}

	return &models.CodeResponse{
		Success:     true,
		Code:        code.Code,
		Platform:    code.Platform,
		ExtractedAt: code.ExtractedAt,
		Confidence:  code.Confidence,
	}
}

// ListCodes returns record metadata with aggregate stats.
func (s *RelayService) ListCodes() *models.ListResponse {
	return &models.ListResponse{
		Codes: s.registry.ListAll(),
		Stats: s.registry.Stats(),
	}
}

// UseCode manually marks a record used. Returns false for an unknown id.
func (s *RelayService) UseCode(id string) bool {
	return s.registry.MarkUsed(id)
}

// Stats returns registry stats with service uptime.
func (s *RelayService) Stats() *models.StatsResponse {
	return &models.StatsResponse{
		Stats:         s.registry.Stats(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
}
