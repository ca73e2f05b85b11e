package relay

import (
	"context"
	"fmt"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/settings"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// Publisher enqueues one job per inbound message for a Worker to process.
// It acknowledges the webhook as soon as every job is queued.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

var _ messenger.Dispatcher = (*Publisher)(nil)

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("relay: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Dispatch enqueues msgs. The resolved settings are dropped; the worker
// resolves them again for the scope.
func (p *Publisher) Dispatch(ctx context.Context, scope settings.Scope, _ settings.Settings, msgs []messenger.InboundMessage) error {
	for _, msg := range msgs {
		if err := p.Enqueue(ctx, scope, msg); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue publishes a single turn job.
func (p *Publisher) Enqueue(ctx context.Context, scope settings.Scope, msg messenger.InboundMessage) error {
	job, body, err := encodeJob(turnJob{ID: msg.MessageID, Scope: scope, Message: msg})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("relay: failed to enqueue job: %w", err)
	}

	p.logger.Debug("turn job enqueued", "job_id", job.ID, "sender_id", msg.SenderID)
	return nil
}
