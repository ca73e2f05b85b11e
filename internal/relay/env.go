package relay

import (
	"context"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/mavenagi"
	"github.com/wolfman30/messenger-relay/internal/settings"
)

// Backend is the conversational AI backend as seen by one turn.
type Backend interface {
	CreateOrUpdateUser(ctx context.Context, req mavenagi.AppUserRequest) (*mavenagi.AppUser, error)
	GetConversation(ctx context.Context, conversationID string) (*mavenagi.ConversationResponse, error)
	InitializeConversation(ctx context.Context, req mavenagi.ConversationRequest) (*mavenagi.ConversationResponse, error)
	AskConversation(ctx context.Context, conversationID string, req mavenagi.AskRequest) (*mavenagi.ConversationResponse, error)
}

// Platform is the messaging platform as seen by one turn.
type Platform interface {
	SendTextMessage(ctx context.Context, recipientID, text string) (*messenger.SendResponse, error)
	SendTypingOn(ctx context.Context, recipientID string) error
	GetUserProfile(ctx context.Context, userID string) (*messenger.UserProfile, error)
}

// Env is the per-request configuration handed to every turn. Nothing in it
// is shared process state.
type Env struct {
	Scope    settings.Scope
	Settings settings.Settings
	Backend  Backend
	Platform Platform
}

// EnvBuilder creates the Env for a scope and its resolved settings.
type EnvBuilder func(scope settings.Scope, s settings.Settings) Env

// ClientEnv builds Envs backed by the Maven and Graph HTTP clients.
func ClientEnv(maven *mavenagi.Client, graphOpts ...messenger.ClientOption) EnvBuilder {
	if maven == nil {
		panic("relay: maven client cannot be nil")
	}
	return func(scope settings.Scope, s settings.Settings) Env {
		return Env{
			Scope:    scope,
			Settings: s,
			Backend:  maven.Agent(scope.OrganizationID, scope.AgentID),
			Platform: messenger.NewClient(s.PageAccessToken, graphOpts...),
		}
	}
}
