// Package webhook authenticates inbound 2FA pushes. A push is accepted
// only when its HMAC signature recomputes under the shared signing key
// and its timestamp is fresh enough to rule out replay.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"
)

// DefaultMaxAge bounds how far a push timestamp may drift from the
// relay's clock before the push is rejected as a replay.
const DefaultMaxAge = 300 * time.Second

// Verifier checks webhook authenticity. It is stateless and safe for
// concurrent use.
type Verifier struct {
	signingKey []byte
	maxAge     time.Duration
	logger     *slog.Logger

	// nowFunc is replaceable in tests.
	nowFunc func() time.Time
}

// NewVerifier creates a Verifier with the shared signing key. A zero
// maxAge falls back to DefaultMaxAge.
func NewVerifier(signingKey string, maxAge time.Duration, logger *slog.Logger) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		signingKey: []byte(signingKey),
		maxAge:     maxAge,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// VerifySignature recomputes the keyed HMAC-SHA256 over timestamp+token
// and compares it to the supplied signature in constant time. Malformed
// or empty inputs fail verification; the method never panics.
func (v *Verifier) VerifySignature(token, timestamp, signature string) bool {
	if token == "" || timestamp == "" || signature == "" {
		return false
	}

	h := hmac.New(sha256.New, v.signingKey)
	h.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		v.logger.Warn("webhook signature mismatch",
			slog.String("token", truncate(token, 8)),
		)
		return false
	}
	return true
}

// IsTimestampValid reports whether the push timestamp (unix seconds,
// decimal string) is within the replay window in either direction.
func (v *Verifier) IsTimestampValid(timestamp string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := v.nowFunc().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	return age <= v.maxAge
}

// VerifyWebhook requires both a valid signature and a fresh timestamp.
func (v *Verifier) VerifyWebhook(token, timestamp, signature string) bool {
	return v.VerifySignature(token, timestamp, signature) && v.IsTimestampValid(timestamp)
}

// Sign computes the signature the upstream service is expected to send.
// Exposed for tests and for local development tooling.
func (v *Verifier) Sign(token, timestamp string) string {
	h := hmac.New(sha256.New, v.signingKey)
	h.Write([]byte(timestamp + token))
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
