package settings

import (
	"context"

	"github.com/wolfman30/messenger-relay/internal/mavenagi"
)

// MavenProvider reads settings from the agent's Maven app settings.
type MavenProvider struct {
	client *mavenagi.Client
}

func NewMavenProvider(client *mavenagi.Client) *MavenProvider {
	if client == nil {
		panic("settings: maven client cannot be nil")
	}
	return &MavenProvider{client: client}
}

func (p *MavenProvider) Get(ctx context.Context, scope Scope) (Settings, error) {
	if err := scope.Validate(); err != nil {
		return Settings{}, err
	}
	doc, err := p.client.Agent(scope.OrganizationID, scope.AgentID).GetAppSettings(ctx)
	if err != nil {
		return Settings{}, wrapScope(scope, err)
	}
	return FromMap(doc), nil
}
