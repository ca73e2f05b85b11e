// Package settings resolves the per-agent Messenger settings (verify token,
// page access token, conversation tags) the relay needs for each request.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidScope is returned when a scope is missing its organization or agent.
var ErrInvalidScope = errors.New("settings: organization and agent ids are required")

// Scope identifies one organization/agent pair.
type Scope struct {
	OrganizationID string `json:"organizationId"`
	AgentID        string `json:"agentId"`
}

// Validate reports whether both identifiers are present.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.OrganizationID) == "" || strings.TrimSpace(s.AgentID) == "" {
		return ErrInvalidScope
	}
	return nil
}

func (s Scope) String() string {
	return s.OrganizationID + "/" + s.AgentID
}

// Settings are the Messenger credentials and options for one scope.
type Settings struct {
	VerifyToken      string `json:"verifyToken"`
	PageAccessToken  string `json:"pageAccessToken"`
	ConversationTags string `json:"conversationTags,omitempty"`
	AppSecret        string `json:"appSecret,omitempty"`
}

// Tags returns the conversation tags as a deduplicated, trimmed set in
// first-seen order.
func (s Settings) Tags() []string {
	return ParseTags(s.ConversationTags)
}

// ParseTags splits a comma-separated tag list. Blank entries are dropped.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// Provider resolves settings for a scope.
type Provider interface {
	Get(ctx context.Context, scope Scope) (Settings, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, scope Scope) (Settings, error)

func (f ProviderFunc) Get(ctx context.Context, scope Scope) (Settings, error) {
	return f(ctx, scope)
}

// FromMap reads settings from a loosely typed document such as the Maven
// app settings payload. Non-string values are ignored.
func FromMap(m map[string]any) Settings {
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	return Settings{
		VerifyToken:      str("verifyToken"),
		PageAccessToken:  str("pageAccessToken"),
		ConversationTags: str("conversationTags"),
		AppSecret:        str("appSecret"),
	}
}

func wrapScope(scope Scope, err error) error {
	return fmt.Errorf("settings: %s: %w", scope, err)
}
