package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// maxVisibilityTimeout is the SQS ceiling of 12 hours.
const maxVisibilityTimeout = 12 * time.Hour

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue carries turn jobs between the webhook publisher and relay
// workers. A received job stays hidden from other workers for the
// visibility timeout and is deleted by the worker once its turn finishes.
type SQSQueue struct {
	client            sqsAPI
	queueURL          string
	visibilityTimeout int32
}

// SQSQueueOption customizes an SQSQueue.
type SQSQueueOption func(*SQSQueue)

// WithVisibilityTimeout hides received turn jobs for at least d. It must
// cover the longest turn a worker may run, or a slow answer lets the job
// reappear and the user is answered twice. Values are rounded up to whole
// seconds and capped at the SQS maximum; zero keeps the queue default.
func WithVisibilityTimeout(d time.Duration) SQSQueueOption {
	return func(q *SQSQueue) {
		if d <= 0 {
			return
		}
		if d > maxVisibilityTimeout {
			d = maxVisibilityTimeout
		}
		q.visibilityTimeout = int32((d + time.Second - 1) / time.Second)
	}
}

// NewSQSQueue binds client to the turn job queue at queueURL.
func NewSQSQueue(client sqsAPI, queueURL string, opts ...SQSQueueOption) *SQSQueue {
	if client == nil {
		panic("relay: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("relay: SQS queueURL cannot be empty")
	}
	q := &SQSQueue{client: client, queueURL: queueURL}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send publishes one encoded turn job.
func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("relay: send turn job: %w", err)
	}
	return nil
}

// Receive long-polls for up to maxMessages turn jobs.
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitSeconds),
	}
	if q.visibilityTimeout > 0 {
		in.VisibilityTimeout = q.visibilityTimeout
	}
	output, err := q.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("relay: receive turn jobs: %w", err)
	}

	jobs := make([]queueMessage, 0, len(output.Messages))
	for _, msg := range output.Messages {
		jobs = append(jobs, queueMessage{
			ID:            aws.ToString(msg.MessageId),
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}
	return jobs, nil
}

// Delete acknowledges a finished turn job.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("relay: delete turn job: %w", err)
	}
	return nil
}
