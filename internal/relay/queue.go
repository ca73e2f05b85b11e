package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/settings"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// turnJob is the queued unit of work. Settings are resolved again by the
// consumer so credentials never enter the queue.
type turnJob struct {
	ID      string                   `json:"id"`
	Scope   settings.Scope           `json:"scope"`
	Message messenger.InboundMessage `json:"message"`
}

func encodeJob(job turnJob) (turnJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return turnJob{}, "", fmt.Errorf("relay: failed to encode job: %w", err)
	}

	return job, string(body), nil
}
