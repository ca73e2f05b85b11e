// Package relay runs Messenger turns against the conversational AI backend:
// it resolves the conversation, asks the backend, keeps the typing indicator
// alive while waiting and delivers the answer.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/mavenagi"
	"github.com/wolfman30/messenger-relay/internal/observability/metrics"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

var turnTracer = otel.Tracer("relay.internal.relay")

// ErrNoText marks inbound events that carry no text to answer.
var ErrNoText = errors.New("relay: message has no text")

// TurnState is a step of the per-message state machine.
type TurnState string

const (
	StateReceived     TurnState = "RECEIVED"
	StateIdentified   TurnState = "IDENTIFIED"
	StateSessionReady TurnState = "SESSION_READY"
	StateAnswering    TurnState = "ANSWERING"
	StateAnswered     TurnState = "ANSWERED"
	StateDelivered    TurnState = "DELIVERED"
	StateFailed       TurnState = "FAILED"
	StateIgnored      TurnState = "IGNORED"
	StateDuplicate    TurnState = "DUPLICATE"
)

// Terminal reports whether no further transition follows s.
func (s TurnState) Terminal() bool {
	switch s {
	case StateDelivered, StateFailed, StateIgnored, StateDuplicate:
		return true
	}
	return false
}

// TurnResult is the outcome of one inbound message.
type TurnResult struct {
	TurnID          string
	State           TurnState
	ConversationKey string
	Reply           string
	// Fallback is set when Reply is the fallback text rather than an answer.
	Fallback bool
	Err      error
}

const processedProvider = "messenger"

type processedEventStore interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Relay runs turns. It holds no per-request state and is safe for
// concurrent use.
type Relay struct {
	buildEnv  EnvBuilder
	processed processedEventStore
	turns     TurnRecorder
	metrics   *metrics.RelayMetrics
	logger    *logging.Logger
	now       func() time.Time

	typingInterval time.Duration
	turnTimeout    time.Duration
	concurrency    int
	fallbackReply  string
}

// Option customizes a Relay.
type Option func(*Relay)

// WithTypingInterval sets how often the typing indicator is refreshed.
func WithTypingInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.typingInterval = d
		}
	}
}

// WithTurnTimeout bounds the wall time of a single turn.
func WithTurnTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.turnTimeout = d
		}
	}
}

// WithConcurrency bounds how many conversations of one batch run at once.
func WithConcurrency(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithFallbackReply sets the text delivered when the answer has no text.
func WithFallbackReply(text string) Option {
	return func(r *Relay) {
		if strings.TrimSpace(text) != "" {
			r.fallbackReply = text
		}
	}
}

// WithProcessedStore skips messages whose id was already handled.
func WithProcessedStore(store processedEventStore) Option {
	return func(r *Relay) {
		r.processed = store
	}
}

// WithTurnRecorder persists turn status transitions.
func WithTurnRecorder(rec TurnRecorder) Option {
	return func(r *Relay) {
		r.turns = rec
	}
}

func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithClock overrides the time source used for conversation day buckets.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Relay. buildEnv supplies the backend and platform clients
// for each scope.
func New(buildEnv EnvBuilder, logger *logging.Logger, opts ...Option) *Relay {
	if buildEnv == nil {
		panic("relay: env builder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Relay{
		buildEnv:       buildEnv,
		logger:         logger,
		now:            time.Now,
		typingInterval: DefaultTypingInterval,
		turnTimeout:    900 * time.Second,
		concurrency:    4,
		fallbackReply:  DefaultFallbackReply,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleInbound runs one turn for msg and reports its terminal state. Errors
// are returned in the result, never raised, so callers can keep processing
// sibling messages.
func (r *Relay) HandleInbound(ctx context.Context, env Env, msg messenger.InboundMessage) (res TurnResult) {
	started := time.Now()
	res = TurnResult{TurnID: turnID(msg), State: StateReceived}

	ctx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()

	ctx, span := turnTracer.Start(ctx, "relay.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("relay.organization_id", env.Scope.OrganizationID),
		attribute.String("relay.agent_id", env.Scope.AgentID),
		attribute.String("relay.sender_id", msg.SenderID),
		attribute.String("relay.turn_id", res.TurnID),
	)

	logger := r.logger.With(
		"turn_id", res.TurnID,
		"organization_id", env.Scope.OrganizationID,
		"agent_id", env.Scope.AgentID,
		"sender_id", msg.SenderID,
	)

	if msg.Text == "" {
		res.State = StateIgnored
		res.Err = ErrNoText
		r.metrics.ObserveTurn(string(res.State), time.Since(started))
		return res
	}

	if r.isDuplicate(ctx, logger, msg) {
		res.State = StateDuplicate
		logger.Info("skipping already processed message", "mid", msg.MessageID)
		r.metrics.ObserveTurn(string(res.State), time.Since(started))
		return res
	}

	r.recordReceived(ctx, logger, env, msg, res.TurnID)

	defer func() {
		elapsed := time.Since(started)
		span.SetAttributes(
			attribute.String("relay.state", string(res.State)),
			attribute.String("relay.conversation_key", res.ConversationKey),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			logger.Error("turn failed", "error", res.Err, "state", res.State, "conversation_key", res.ConversationKey, "duration_ms", elapsed.Milliseconds())
		} else {
			logger.Info("turn finished", "state", res.State, "conversation_key", res.ConversationKey, "fallback", res.Fallback, "duration_ms", elapsed.Milliseconds())
		}
		r.metrics.ObserveTurn(string(res.State), elapsed)
		r.recordFinished(logger, res)
	}()

	userRef, err := r.upsertUser(ctx, logger, env, msg.SenderID)
	if err != nil {
		return failed(res, err)
	}
	advance(logger, &res, StateIdentified)

	res.ConversationKey = ResolveConversationKey(msg.RecipientID, msg.SenderID, "", r.now())
	session, err := NewSessionManager(env.Backend).Ensure(ctx, res.ConversationKey, SessionConfig{Tags: env.Settings.Tags()})
	if err != nil {
		return failed(res, err)
	}
	if session.Created {
		logger.Info("initialized conversation", "conversation_key", session.Key)
	}
	res.ConversationKey = session.Key
	advance(logger, &res, StateSessionReady)

	advance(logger, &res, StateAnswering)
	answer, err := r.ask(ctx, logger, env, msg, session.Key, userRef)
	if err != nil {
		return failed(res, err)
	}
	advance(logger, &res, StateAnswered)

	res.Reply = BuildReply(answer)
	if strings.TrimSpace(res.Reply) == "" {
		logger.Warn("backend answer has no text, sending fallback", "conversation_key", session.Key)
		res.Reply = r.fallbackReply
		res.Fallback = true
	}

	if _, err := env.Platform.SendTextMessage(ctx, msg.SenderID, res.Reply); err != nil {
		return failed(res, fmt.Errorf("relay: deliver reply: %w", err))
	}
	advance(logger, &res, StateDelivered)
	return res
}

// ask submits the question while the typing indicator is kept alive. The
// keep-alive is released before ask returns on every path.
func (r *Relay) ask(ctx context.Context, logger *logging.Logger, env Env, msg messenger.InboundMessage, conversationKey, userRef string) (*mavenagi.ConversationResponse, error) {
	keepAlive := StartKeepAlive(ctx, r.typingInterval, func(ctx context.Context) {
		err := env.Platform.SendTypingOn(ctx, msg.SenderID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debug("typing signal failed", "error", err)
		}
		r.metrics.ObserveTypingSignal(err == nil)
	})
	defer keepAlive.Stop()

	resp, err := env.Backend.AskConversation(ctx, conversationKey, mavenagi.AskRequest{
		ConversationMessageID: mavenagi.EntityIDBase{ReferenceID: uuid.NewString()},
		UserID:                mavenagi.EntityIDBase{ReferenceID: userRef},
		Text:                  msg.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("relay: ask conversation %s: %w", conversationKey, err)
	}
	return resp, nil
}

// upsertUser creates or updates the backend user for senderID. The public
// profile name is attached when the platform returns one.
func (r *Relay) upsertUser(ctx context.Context, logger *logging.Logger, env Env, senderID string) (string, error) {
	ref := UserReference(senderID)
	req := mavenagi.AppUserRequest{
		UserID:      mavenagi.EntityIDBase{ReferenceID: ref},
		Identifiers: []mavenagi.AppUserIdentifier{},
		Data:        map[string]mavenagi.UserData{},
	}

	if senderID != "" {
		profile, err := env.Platform.GetUserProfile(ctx, senderID)
		switch {
		case err != nil:
			logger.Debug("user profile lookup failed", "error", err)
		case profile != nil && profile.Name != "":
			req.Data["name"] = mavenagi.UserData{Value: profile.Name, Visibility: mavenagi.VisibilityVisible}
		}
	}

	if _, err := env.Backend.CreateOrUpdateUser(ctx, req); err != nil {
		return "", fmt.Errorf("relay: upsert user: %w", err)
	}
	return ref, nil
}

func (r *Relay) isDuplicate(ctx context.Context, logger *logging.Logger, msg messenger.InboundMessage) bool {
	if r.processed == nil || msg.MessageID == "" {
		return false
	}
	inserted, err := r.processed.MarkProcessed(ctx, processedProvider, msg.MessageID)
	if err != nil {
		logger.Warn("processed store unavailable, handling message anyway", "error", err, "mid", msg.MessageID)
		return false
	}
	return !inserted
}

func (r *Relay) recordReceived(ctx context.Context, logger *logging.Logger, env Env, msg messenger.InboundMessage, id string) {
	if r.turns == nil {
		return
	}
	rec := &TurnRecord{
		TurnID:         id,
		OrganizationID: env.Scope.OrganizationID,
		AgentID:        env.Scope.AgentID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		MessageID:      msg.MessageID,
	}
	if err := r.turns.PutReceived(ctx, rec); err != nil {
		logger.Warn("failed to record turn", "error", err)
	}
}

func (r *Relay) recordFinished(logger *logging.Logger, res TurnResult) {
	if r.turns == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.turns.MarkFinished(ctx, res.TurnID, res); err != nil {
		logger.Warn("failed to update turn status", "error", err)
	}
}

func advance(logger *logging.Logger, res *TurnResult, state TurnState) {
	res.State = state
	logger.Debug("turn state", "state", state, "conversation_key", res.ConversationKey)
}

func failed(res TurnResult, err error) TurnResult {
	res.State = StateFailed
	res.Err = err
	return res
}

func turnID(msg messenger.InboundMessage) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	return uuid.NewString()
}
