package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/messenger-relay/internal/mavenagi"
)

// SessionBackend is the part of Backend used to get or create conversations.
type SessionBackend interface {
	GetConversation(ctx context.Context, conversationID string) (*mavenagi.ConversationResponse, error)
	InitializeConversation(ctx context.Context, req mavenagi.ConversationRequest) (*mavenagi.ConversationResponse, error)
}

// SessionConfig shapes newly initialized conversations.
type SessionConfig struct {
	Tags []string
}

// Session is the outcome of SessionManager.Ensure.
type Session struct {
	Key     string
	Created bool
}

// SessionManager turns the backend's get and initialize calls into a single
// get-or-create.
type SessionManager struct {
	backend SessionBackend
}

func NewSessionManager(backend SessionBackend) *SessionManager {
	if backend == nil {
		panic("relay: session backend cannot be nil")
	}
	return &SessionManager{backend: backend}
}

// Ensure returns the conversation addressed by key, initializing it when the
// backend reports it does not exist. Any lookup failure other than a
// definitive not-found is returned instead of re-initializing.
//
// The check and the initialize are not atomic; two concurrent turns for the
// same new key may both initialize.
func (m *SessionManager) Ensure(ctx context.Context, key string, cfg SessionConfig) (Session, error) {
	_, err := m.backend.GetConversation(ctx, key)
	if err == nil {
		return Session{Key: key}, nil
	}
	if !errors.Is(err, mavenagi.ErrNotFound) {
		return Session{}, fmt.Errorf("relay: lookup conversation %s: %w", key, err)
	}

	resp, err := m.backend.InitializeConversation(ctx, NewConversationRequest(key, cfg))
	if err != nil {
		return Session{}, fmt.Errorf("relay: initialize conversation %s: %w", key, err)
	}
	sessionKey := key
	if resp != nil && resp.ConversationID.ReferenceID != "" {
		sessionKey = resp.ConversationID.ReferenceID
	}
	return Session{Key: sessionKey, Created: true}, nil
}

// NewConversationRequest builds the initialize payload for key.
func NewConversationRequest(key string, cfg SessionConfig) mavenagi.ConversationRequest {
	req := mavenagi.ConversationRequest{
		ConversationID: mavenagi.EntityIDBase{ReferenceID: key},
		Messages:       []mavenagi.ConversationMessageRequest{},
		ResponseConfig: &mavenagi.ResponseConfig{
			Capabilities:   []mavenagi.Capability{mavenagi.CapabilityMarkdown},
			IsCopilot:      false,
			ResponseLength: mavenagi.ResponseLengthShort,
		},
		Metadata: map[string]string{
			"escalation_action_enabled": "false",
		},
	}
	if len(cfg.Tags) > 0 {
		req.Tags = dedupe(cfg.Tags)
	}
	return req
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
