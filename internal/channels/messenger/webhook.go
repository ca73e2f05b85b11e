package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/messenger-relay/internal/observability/metrics"
	"github.com/wolfman30/messenger-relay/internal/settings"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

var webhookTracer = otel.Tracer("relay.internal.channels.messenger")

const (
	// AckBody is written for every accepted POST delivery.
	AckBody = "Message processed"

	maxWebhookBody = 1 << 20
)

// Boundary outcomes for messaging events.
const (
	OutcomeAccepted = "accepted"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
)

var (
	errMissingSender    = errors.New("missing sender id")
	errMissingRecipient = errors.New("missing recipient id")
)

// Dispatcher hands validated messages to the relay.
type Dispatcher interface {
	Dispatch(ctx context.Context, scope settings.Scope, s settings.Settings, msgs []InboundMessage) error
}

// ScopeFunc extracts the organization/agent scope from a request.
type ScopeFunc func(r *http.Request) settings.Scope

// WebhookHandler serves the page webhook: the GET subscription handshake and
// POST event deliveries.
type WebhookHandler struct {
	settings   settings.Provider
	dispatcher Dispatcher
	scope      ScopeFunc
	metrics    *metrics.RelayMetrics
	logger     *logging.Logger
}

// NewWebhookHandler creates a webhook handler. metrics may be nil.
func NewWebhookHandler(provider settings.Provider, dispatcher Dispatcher, scope ScopeFunc, m *metrics.RelayMetrics, logger *logging.Logger) *WebhookHandler {
	if provider == nil {
		panic("messenger: settings provider cannot be nil")
	}
	if dispatcher == nil {
		panic("messenger: dispatcher cannot be nil")
	}
	if scope == nil {
		panic("messenger: scope func cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		settings:   provider,
		dispatcher: dispatcher,
		scope:      scope,
		metrics:    m,
		logger:     logger,
	}
}

// HandleVerification answers the GET subscription handshake.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messenger.webhook.verify")
	defer span.End()

	scope := h.scope(r)
	span.SetAttributes(
		attribute.String("relay.organization_id", scope.OrganizationID),
		attribute.String("relay.agent_id", scope.AgentID),
	)

	s, err := h.settings.Get(ctx, scope)
	if err != nil {
		h.logger.Error("failed to load settings for verification", "error", err, "scope", scope.String())
		http.Error(w, "Settings unavailable", http.StatusServiceUnavailable)
		span.RecordError(err)
		return
	}

	q := r.URL.Query()
	res := Verify(q.Get("hub.verify_token"), s.VerifyToken, q.Get("hub.challenge"))
	if !res.OK() {
		h.logger.Warn("webhook verification failed", "scope", scope.String())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(res.Status)
	fmt.Fprint(w, res.Body)
}

// HandleInbound handles POST event deliveries. Per-event outcomes never
// change the 200 acknowledgement. Only failures that lose the whole delivery
// answer otherwise: 503 when settings cannot be loaded and 500 when the
// batch cannot be handed off, so Meta redelivers it. With a queue dispatcher
// that means a retry instead of a dropped batch; inline dispatch never fails.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messenger.webhook.inbound")
	defer span.End()

	scope := h.scope(r)
	span.SetAttributes(
		attribute.String("relay.organization_id", scope.OrganizationID),
		attribute.String("relay.agent_id", scope.AgentID),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		if err == nil {
			err = errors.New("payload too large")
		}
		h.logger.Warn("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	s, err := h.settings.Get(ctx, scope)
	if err != nil {
		h.logger.Error("failed to load settings", "error", err, "scope", scope.String())
		http.Error(w, "Settings unavailable", http.StatusServiceUnavailable)
		span.RecordError(err)
		return
	}

	if s.AppSecret != "" && !VerifySignature(s.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		err := errors.New("invalid webhook signature")
		h.logger.Warn("invalid messenger signature", "scope", scope.String())
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		span.RecordError(err)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("failed to decode webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	parsed := ParseWebhookEvent(event)
	for _, rej := range parsed.Rejected {
		h.logger.Warn("rejected messaging event", "entry_id", rej.EntryID, "index", rej.Index, "error", rej.Err)
	}
	h.metrics.ObserveWebhookEvent(OutcomeAccepted, len(parsed.Messages))
	h.metrics.ObserveWebhookEvent(OutcomeIgnored, parsed.Ignored)
	h.metrics.ObserveWebhookEvent(OutcomeRejected, len(parsed.Rejected))
	span.SetAttributes(attribute.Int("relay.messages", len(parsed.Messages)))

	if len(parsed.Messages) > 0 {
		if err := h.dispatcher.Dispatch(ctx, scope, s, parsed.Messages); err != nil {
			h.logger.Error("failed to dispatch messages", "error", err, "scope", scope.String(), "count", len(parsed.Messages))
			http.Error(w, "Failed to process messages", http.StatusInternalServerError)
			span.RecordError(err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, AckBody)
}

// RejectedEvent describes a messaging event dropped at the boundary.
type RejectedEvent struct {
	EntryID string
	Index   int
	Err     error
}

// ParseResult splits a delivery into relayable messages and dropped events.
type ParseResult struct {
	Messages []InboundMessage
	Ignored  int
	Rejected []RejectedEvent
}

// ParseWebhookEvent validates every messaging event of a delivery. Events
// without a sender or recipient are rejected. Events without a text message,
// and echoes of the page's own messages, are ignored.
func ParseWebhookEvent(event WebhookEvent) ParseResult {
	var res ParseResult
	for _, entry := range event.Entry {
		for i, m := range entry.Messaging {
			msg, err := parseMessaging(m)
			if err != nil {
				res.Rejected = append(res.Rejected, RejectedEvent{EntryID: entry.ID, Index: i, Err: err})
				continue
			}
			if msg == nil {
				res.Ignored++
				continue
			}
			res.Messages = append(res.Messages, *msg)
		}
	}
	return res
}

func parseMessaging(m Messaging) (*InboundMessage, error) {
	senderID := strings.TrimSpace(m.Sender.ID)
	recipientID := strings.TrimSpace(m.Recipient.ID)
	if senderID == "" {
		return nil, errMissingSender
	}
	if recipientID == "" {
		return nil, errMissingRecipient
	}
	if m.Message == nil || m.Message.IsEcho || m.Message.Text == "" {
		return nil, nil
	}
	msg := &InboundMessage{
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        m.Message.Text,
		MessageID:   m.Message.MID,
	}
	if m.Timestamp > 0 {
		msg.Timestamp = time.UnixMilli(m.Timestamp)
	}
	return msg, nil
}
