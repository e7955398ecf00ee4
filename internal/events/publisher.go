// Package events publishes code lifecycle notifications to NATS so
// downstream automation can react without polling. Publication is
// best-effort and config-gated; a nil Publisher is a no-op.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for code lifecycle events.
const (
	SubjectCodeStored   = "otprelay.codes.stored"
	SubjectCodeConsumed = "otprelay.codes.consumed"
)

// CodeStoredEvent is published when a verification code enters the registry.
// The code value itself is never published.
type CodeStoredEvent struct {
	CodeID     string    `json:"code_id"`
	Platform   string    `json:"platform"`
	Confidence float64   `json:"confidence"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CodeConsumedEvent is published when a poller consumes a code.
type CodeConsumedEvent struct {
	CodeID   string `json:"code_id"`
	Platform string `json:"platform"`
}

// Publisher publishes lifecycle events to NATS subjects.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection and returns a Publisher.
func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("otp-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// PublishCodeStored publishes a code stored event.
func (p *Publisher) PublishCodeStored(ctx context.Context, event *CodeStoredEvent) error {
	return p.publish(ctx, SubjectCodeStored, event)
}

// PublishCodeConsumed publishes a code consumed event.
func (p *Publisher) PublishCodeConsumed(ctx context.Context, event *CodeConsumedEvent) error {
	return p.publish(ctx, SubjectCodeConsumed, event)
}

// publish marshals data to JSON and publishes to the specified subject.
// A nil Publisher drops the event silently.
func (p *Publisher) publish(ctx context.Context, subject string, data interface{}) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.conn.Publish(subject, bytes)
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
