package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/settings"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

func TestMemoryQueue_SendReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		if err := q.Send(ctx, body); err != nil {
			t.Fatal(err)
		}
	}
	if q.pending() != 3 {
		t.Fatalf("pending() = %d", q.pending())
	}

	msgs, err := q.Receive(ctx, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "a" || msgs[1].Body != "b" {
		t.Fatalf("unexpected batch %+v", msgs)
	}
	if msgs[0].ReceiptHandle == "" {
		t.Fatal("expected receipt handle")
	}
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	start := time.Now()
	msgs, err := q.Receive(context.Background(), 1, 1)
	if err != nil || msgs != nil {
		t.Fatalf("expected empty poll, got %v %v", msgs, err)
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Fatal("expected receive to wait for the poll duration")
	}
}

func TestMemoryQueue_RespectsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Receive(ctx, 1, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := q.Send(context.Background(), "fill"); err != nil {
		t.Fatal(err)
	}
	if err := q.Send(ctx, "overflow"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected blocked send to honour ctx, got %v", err)
	}
}

func TestPublisher_DispatchEnqueuesJobPerMessage(t *testing.T) {
	q := NewMemoryQueue(8)
	p := NewPublisher(q, logging.Default())

	msgs := []messenger.InboundMessage{inbound("user_1", "a"), {SenderID: "user_2", RecipientID: "page_1", Text: "b"}}
	if err := p.Dispatch(context.Background(), testScope, settings.Settings{PageAccessToken: "secret"}, msgs); err != nil {
		t.Fatal(err)
	}

	batch, err := q.Receive(context.Background(), 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(batch))
	}

	var job turnJob
	if err := json.Unmarshal([]byte(batch[0].Body), &job); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	if job.ID != "mid-user_1-a" || job.Scope != testScope || job.Message.Text != "a" {
		t.Fatalf("unexpected job %+v", job)
	}
	if strings.Contains(batch[0].Body, "secret") {
		t.Fatal("settings must not be queued")
	}

	var anon turnJob
	if err := json.Unmarshal([]byte(batch[1].Body), &anon); err != nil {
		t.Fatal(err)
	}
	if anon.ID == "" {
		t.Fatal("expected generated job id when message has no mid")
	}
}

type failingQueue struct{ MemoryQueue }

func (failingQueue) Send(context.Context, string) error { return errors.New("queue down") }

func TestPublisher_DispatchPropagatesSendError(t *testing.T) {
	p := NewPublisher(&failingQueue{}, logging.Default())
	err := p.Dispatch(context.Background(), testScope, settings.Settings{}, []messenger.InboundMessage{inbound("u", "x")})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestWorker_ProcessesQueuedTurns(t *testing.T) {
	backend := newFakeBackend()
	platform := newFakePlatform()
	var resolved []settings.Scope
	provider := settings.ProviderFunc(func(_ context.Context, scope settings.Scope) (settings.Settings, error) {
		resolved = append(resolved, scope)
		return settings.Settings{PageAccessToken: "pat"}, nil
	})
	r := newTestRelay(backend, platform, settings.Settings{})

	q := NewMemoryQueue(8)
	if err := NewPublisher(q, logging.Default()).Dispatch(context.Background(), testScope, settings.Settings{}, []messenger.InboundMessage{inbound("user_1", "hi")}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(r, q, provider, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(1))
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(platform.sentMessages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	w.Wait()

	if sent := platform.sentMessages(); len(sent) != 1 || sent[0].text != "answer to hi" {
		t.Fatalf("expected queued turn to be delivered, got %+v", sent)
	}
	if len(resolved) != 1 || resolved[0] != testScope {
		t.Fatalf("expected settings resolved for job scope, got %v", resolved)
	}
}

func TestWorker_HandleMessageDropsUndecodableJobs(t *testing.T) {
	q := &recordingQueue{}
	r := newTestRelay(newFakeBackend(), newFakePlatform(), settings.Settings{})
	w := NewWorker(r, q, settings.NewStaticProvider(settings.Settings{}), logging.Default())

	if _, ok := w.handleMessage(context.Background(), queueMessage{Body: "{", ReceiptHandle: "rh-1"}); ok {
		t.Fatal("expected undecodable job to be skipped")
	}
	if len(q.deleted) != 1 || q.deleted[0] != "rh-1" {
		t.Fatalf("expected job to be deleted, got %v", q.deleted)
	}
}

func TestWorker_HandleMessageSettingsFailure(t *testing.T) {
	q := &recordingQueue{}
	backend := newFakeBackend()
	failing := settings.ProviderFunc(func(context.Context, settings.Scope) (settings.Settings, error) {
		return settings.Settings{}, errors.New("settings down")
	})
	w := NewWorker(newTestRelay(backend, newFakePlatform(), settings.Settings{}), q, failing, logging.Default())

	_, body, err := encodeJob(turnJob{Scope: testScope, Message: inbound("user_1", "hi")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.handleMessage(context.Background(), queueMessage{Body: body, ReceiptHandle: "rh-2"}); ok {
		t.Fatal("expected job to be skipped without settings")
	}
	if users, _, _, _ := backend.counts(); users != 0 {
		t.Fatal("turn must not run without settings")
	}
	if len(q.deleted) != 1 {
		t.Fatalf("expected job to be deleted, got %v", q.deleted)
	}
}

type recordingQueue struct {
	deleted []string
}

func (q *recordingQueue) Send(context.Context, string) error { return nil }
func (q *recordingQueue) Receive(context.Context, int, int) ([]queueMessage, error) {
	return nil, context.Canceled
}
func (q *recordingQueue) Delete(_ context.Context, handle string) error {
	q.deleted = append(q.deleted, handle)
	return nil
}

func TestWorkerOptions(t *testing.T) {
	cfg := workerConfig{}
	WithWorkerCount(0)(&cfg)
	WithReceiveWaitSeconds(60)(&cfg)
	WithReceiveBatchSize(50)(&cfg)
	if cfg.workers != 0 || cfg.receiveWaitSecs != maxWaitSeconds || cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	deleted  []*sqs.DeleteMessageInput
	received *sqs.ReceiveMessageInput
	messages []sqstypes.Message
	err      error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, f.err
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, in)
	return &sqs.DeleteMessageOutput{}, f.err
}

func TestSQSQueue(t *testing.T) {
	api := &fakeSQS{messages: []sqstypes.Message{{
		MessageId:     aws.String("sqs-1"),
		Body:          aws.String(`{"id":"j"}`),
		ReceiptHandle: aws.String("rh"),
	}}}
	q := NewSQSQueue(api, "https://sqs.local/relay")
	ctx := context.Background()

	if err := q.Send(ctx, "body"); err != nil {
		t.Fatal(err)
	}
	if aws.ToString(api.sent[0].QueueUrl) != "https://sqs.local/relay" || aws.ToString(api.sent[0].MessageBody) != "body" {
		t.Fatalf("unexpected send input %+v", api.sent[0])
	}

	msgs, err := q.Receive(ctx, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if api.received.MaxNumberOfMessages != 5 || api.received.WaitTimeSeconds != 10 || api.received.VisibilityTimeout != 0 {
		t.Fatalf("unexpected receive input %+v", api.received)
	}
	if len(msgs) != 1 || msgs[0].ID != "sqs-1" || msgs[0].ReceiptHandle != "rh" {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	if err := q.Delete(ctx, ""); err != nil || len(api.deleted) != 0 {
		t.Fatal("empty receipt handle must be a no-op")
	}
	if err := q.Delete(ctx, "rh"); err != nil || aws.ToString(api.deleted[0].ReceiptHandle) != "rh" {
		t.Fatalf("unexpected delete %v %+v", err, api.deleted)
	}

	api.err = errors.New("throttled")
	if _, err := q.Receive(ctx, 1, 0); err == nil {
		t.Fatal("expected receive error")
	}
}

func TestSQSQueue_VisibilityTimeoutCoversTurn(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    int32
	}{
		{name: "default turn budget plus margin", timeout: 900*time.Second + time.Minute, want: 960},
		{name: "rounds up partial seconds", timeout: 1500 * time.Millisecond, want: 2},
		{name: "capped at sqs maximum", timeout: 24 * time.Hour, want: 43200},
		{name: "zero keeps queue default", timeout: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeSQS{}
			q := NewSQSQueue(api, "https://sqs.local/relay", WithVisibilityTimeout(tt.timeout))
			if _, err := q.Receive(context.Background(), 1, 20); err != nil {
				t.Fatal(err)
			}
			if api.received.VisibilityTimeout != tt.want {
				t.Fatalf("VisibilityTimeout = %d, want %d", api.received.VisibilityTimeout, tt.want)
			}
		})
	}
}
