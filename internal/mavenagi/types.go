package mavenagi

import "strings"

// Capability advertises what the channel can render.
type Capability string

// ResponseLength shapes how verbose generated answers are.
type ResponseLength string

const (
	CapabilityMarkdown Capability = "MARKDOWN"

	ResponseLengthShort  ResponseLength = "SHORT"
	ResponseLengthMedium ResponseLength = "MEDIUM"

	VisibilityVisible = "VISIBLE"

	MessageTypeUser  = "user"
	MessageTypeBot   = "bot"
	ResponseTypeText = "text"
)

// EntityIDBase is the app-scoped identifier sent on requests.
type EntityIDBase struct {
	ReferenceID string `json:"referenceId"`
}

// EntityID is the identifier returned by the backend.
type EntityID struct {
	ReferenceID    string `json:"referenceId"`
	AppID          string `json:"appId,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	AgentID        string `json:"agentId,omitempty"`
	Type           string `json:"type,omitempty"`
}

// AppUserIdentifier is an email/phone style identifier for a user.
type AppUserIdentifier struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// UserData is one named attribute stored on a user.
type UserData struct {
	Value      string `json:"value"`
	Visibility string `json:"visibility"`
}

// AppUserRequest is the body of users.createOrUpdate.
type AppUserRequest struct {
	UserID      EntityIDBase        `json:"userId"`
	Identifiers []AppUserIdentifier `json:"identifiers"`
	Data        map[string]UserData `json:"data"`
}

// AppUser is the stored user.
type AppUser struct {
	UserID      EntityID            `json:"userId"`
	Identifiers []AppUserIdentifier `json:"identifiers,omitempty"`
	Data        map[string]UserData `json:"data,omitempty"`
}

// ResponseConfig shapes generated answers for a conversation.
type ResponseConfig struct {
	Capabilities   []Capability   `json:"capabilities"`
	IsCopilot      bool           `json:"isCopilot"`
	ResponseLength ResponseLength `json:"responseLength"`
}

// ConversationMessageRequest seeds a conversation with prior messages.
type ConversationMessageRequest struct {
	ConversationMessageID EntityIDBase `json:"conversationMessageId"`
	UserID                EntityIDBase `json:"userId"`
	Text                  string       `json:"text"`
	UserMessageType       string       `json:"userMessageType,omitempty"`
}

// ConversationRequest is the body of conversation.initialize.
type ConversationRequest struct {
	ConversationID EntityIDBase                 `json:"conversationId"`
	Messages       []ConversationMessageRequest `json:"messages"`
	ResponseConfig *ResponseConfig              `json:"responseConfig,omitempty"`
	Metadata       map[string]string            `json:"metadata,omitempty"`
	Tags           []string                     `json:"tags,omitempty"`
}

// AskRequest is the body of conversation.ask.
type AskRequest struct {
	ConversationMessageID EntityIDBase `json:"conversationMessageId"`
	UserID                EntityIDBase `json:"userId"`
	Text                  string       `json:"text"`
}

// BotResponse is one segment of a bot message. Only text segments carry Text.
type BotResponse struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// IsText reports whether the segment is plain text/markdown.
func (r BotResponse) IsText() bool {
	return strings.EqualFold(r.Type, ResponseTypeText)
}

// ConversationMessage is either a user message or a bot message.
type ConversationMessage struct {
	Type                  string        `json:"type"`
	ConversationMessageID *EntityID     `json:"conversationMessageId,omitempty"`
	Text                  string        `json:"text,omitempty"`
	Responses             []BotResponse `json:"responses,omitempty"`
}

// IsBot reports whether the message was authored by the agent.
func (m ConversationMessage) IsBot() bool {
	return strings.EqualFold(m.Type, MessageTypeBot)
}

// ConversationResponse is returned by get, initialize and ask.
type ConversationResponse struct {
	ConversationID EntityID              `json:"conversationId"`
	Messages       []ConversationMessage `json:"messages"`
	Tags           []string              `json:"tags,omitempty"`
	Metadata       map[string]string     `json:"metadata,omitempty"`
}
