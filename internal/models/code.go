package models

import (
	"encoding/json"
	"time"
)

// PlatformUnknown is the tag assigned when no fingerprint matches the
// triggering email.
const PlatformUnknown = "unknown"

// VerificationCode is a single extracted 2FA code held by the registry.
// The Code field is the secret itself and is excluded from listing
// responses; only the consumption endpoint returns it.
type VerificationCode struct {
	ID          string          `json:"id"`
	Code        string          `json:"-"`
	Platform    string          `json:"platform"`
	Sender      string          `json:"sender"`
	Subject     string          `json:"subject"`
	ExtractedAt time.Time       `json:"extracted_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Used        bool            `json:"used"`
	Confidence  float64         `json:"confidence"`
	RawEnvelope json.RawMessage `json:"-"`
}

// Expired reports whether the record is past its expiry at the given time.
func (c *VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ExtractionResult is the outcome of one extraction attempt. It is
// transient: the webhook handler consumes it immediately to decide
// whether to store a code.
type ExtractionResult struct {
	Success    bool    `json:"success"`
	Code       string  `json:"code,omitempty"`
	Confidence float64 `json:"confidence"`
	Platform   string  `json:"platform"`
	Reasoning  string  `json:"reasoning"`
	Error      string  `json:"error,omitempty"`
}

// RegistryStats aggregates registry state for monitoring.
type RegistryStats struct {
	Total          int      `json:"total"`
	Active         int      `json:"active"`
	Used           int      `json:"used"`
	Expired        int      `json:"expired"`
	Platforms      []string `json:"platforms"`
	MeanConfidence float64  `json:"mean_confidence"`
}
