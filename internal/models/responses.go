package models

import "time"

// WebhookResponse is returned by POST /webhook/2fa.
type WebhookResponse struct {
	Success    bool    `json:"success"`
	CodeID     string  `json:"codeId,omitempty"`
	Platform   string  `json:"platform,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// CodeResponse is returned by GET /api/code/latest. A miss carries
// Success=false and an Error; pollers treat it as retry-later.
type CodeResponse struct {
	Success     bool      `json:"success"`
	Code        string    `json:"code,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	ExtractedAt time.Time `json:"extractedAt,omitzero"`
	Confidence  float64   `json:"confidence,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ListResponse is returned by GET /api/codes. Codes carry metadata only;
// the secret value is never listed.
type ListResponse struct {
	Codes []*VerificationCode `json:"codes"`
	Stats RegistryStats       `json:"stats"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	Stats         RegistryStats `json:"stats"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}
