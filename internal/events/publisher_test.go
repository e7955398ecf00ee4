package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublish_NilPublisherIsNoOp(t *testing.T) {
	var p *Publisher

	err := p.PublishCodeStored(context.Background(), &CodeStoredEvent{
		CodeID:   "abc",
		Platform: "vinsolutions",
	})
	assert.NoError(t, err)

	err = p.PublishCodeConsumed(context.Background(), &CodeConsumedEvent{CodeID: "abc"})
	assert.NoError(t, err)

	p.Close()
}

func TestPublish_CancelledContext(t *testing.T) {
	p := &Publisher{} // no conn, but non-nil receiver path still checks ctx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With no connection the publish is dropped before the ctx check;
	// a nil conn must never panic.
	err := p.PublishCodeStored(ctx, &CodeStoredEvent{CodeID: "x", ExpiresAt: time.Now()})
	assert.NoError(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1")
	assert.Error(t, err)
}
