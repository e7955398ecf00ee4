// Package extractor turns a forwarded 2FA email into an extraction
// result. The primary pass asks a text-understanding model for the code;
// a deterministic regex ladder backs it up when the model fails, times
// out, or reports low confidence.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/inboxpilot/otp-relay/internal/llm"
	"github.com/inboxpilot/otp-relay/internal/metrics"
	"github.com/inboxpilot/otp-relay/internal/models"
)

const (
	// PrimaryConfidence is assigned to a validated model reply.
	PrimaryConfidence = 0.95
	// malformedConfidence is recorded when the model replies with
	// something outside the response grammar.
	malformedConfidence = 0.3
	// fallbackThreshold triggers the regex ladder even after a primary
	// success, if the primary confidence sits below it.
	fallbackThreshold = 0.8
)

// codePattern is the response grammar: a bare 4-8 digit string.
var codePattern = regexp.MustCompile(`^\d{4,8}$`)

// Extractor runs the two-stage extraction pipeline. Safe for concurrent
// use.
type Extractor struct {
	client  llm.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Extractor. client may be nil, in which case only the
// fallback ladder runs. A zero timeout defaults to 15s.
func New(client llm.Client, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, timeout: timeout, logger: logger}
}

// primaryOutcome is the validated result of the model pass.
type primaryOutcome struct {
	success    bool
	code       string
	confidence float64
	reasoning  string
	err        string
}

// Extract runs platform identification, the primary model pass, and the
// fallback ladder. It never returns an error: every failure mode becomes
// a negative ExtractionResult.
func (e *Extractor) Extract(ctx context.Context, subject, body, sender string) models.ExtractionResult {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}()

	platform := IdentifyPlatform(sender, subject)

	primary := e.runPrimary(ctx, subject, body)
	if primary.success && primary.confidence >= fallbackThreshold {
		metrics.ExtractionsTotal.WithLabelValues("primary", "success").Inc()
		return models.ExtractionResult{
			Success:    true,
			Code:       primary.code,
			Confidence: primary.confidence,
			Platform:   platform,
			Reasoning:  primary.reasoning,
		}
	}
	metrics.ExtractionsTotal.WithLabelValues("primary", "failure").Inc()

	// Fallback: ordered regex ladder over subject and body.
	if code, rule := ApplyFallbackRules(subject + "\n" + body); code != "" {
		metrics.ExtractionsTotal.WithLabelValues("fallback", "success").Inc()
		return models.ExtractionResult{
			Success:    true,
			Code:       code,
			Confidence: FallbackConfidence,
			Platform:   platform,
			Reasoning: fmt.Sprintf("fallback rule %q matched after primary stage (confidence %.2f): %s",
				rule, primary.confidence, primary.reasoning),
		}
	}
	metrics.ExtractionsTotal.WithLabelValues("fallback", "failure").Inc()

	return models.ExtractionResult{
		Success:    false,
		Confidence: 0,
		Platform:   platform,
		Reasoning:  fmt.Sprintf("no code found; primary stage: %s", primary.reasoning),
		Error:      primary.err,
	}
}

// runPrimary invokes the model under a bounded timeout and validates the
// reply against the response grammar.
func (e *Extractor) runPrimary(ctx context.Context, subject, body string) primaryOutcome {
	if e.client == nil {
		return primaryOutcome{reasoning: "primary stage disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.client.ExtractCode(ctx, subject, body)
	if err != nil {
		e.logger.Warn("primary extraction failed", slog.String("error", err.Error()))
		return primaryOutcome{
			reasoning: "model call failed",
			err:       err.Error(),
		}
	}

	switch {
	case reply == "" || reply == llm.NoCodeMarker:
		return primaryOutcome{reasoning: "model reported no code"}
	case codePattern.MatchString(reply):
		return primaryOutcome{
			success:    true,
			code:       reply,
			confidence: PrimaryConfidence,
			reasoning:  "model returned a valid code",
		}
	default:
		e.logger.Warn("primary extraction returned malformed reply",
			slog.Int("reply_len", len(reply)),
		)
		return primaryOutcome{
			confidence: malformedConfidence,
			reasoning:  fmt.Sprintf("model reply outside response grammar: %q", truncate(reply, 40)),
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
