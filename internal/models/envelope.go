package models

// WebhookEnvelope is the inbound push payload from the mail-forwarding
// service. Timestamp, Token and Signature authenticate the push; the
// remaining fields describe the forwarded email.
type WebhookEnvelope struct {
	Timestamp string `json:"timestamp"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	BodyPlain string `json:"body-plain"`
	BodyHTML  string `json:"body-html,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Body returns the preferred body variant for extraction: plain text when
// present, otherwise the HTML variant.
func (e *WebhookEnvelope) Body() string {
	if e.BodyPlain != "" {
		return e.BodyPlain
	}
	return e.BodyHTML
}
