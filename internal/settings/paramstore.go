package settings

import (
	"context"
	"path"
	"strings"

	"github.com/wolfman30/messenger-relay/internal/integrations/paramstore"
)

// ParamStoreProvider reads a JSON settings document from SSM Parameter Store
// at <prefix>/<organizationId>/<agentId>.
type ParamStoreProvider struct {
	getter paramstore.Getter
	prefix string
}

func NewParamStoreProvider(getter paramstore.Getter, prefix string) *ParamStoreProvider {
	if getter == nil {
		panic("settings: parameter getter cannot be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "/"
	}
	return &ParamStoreProvider{getter: getter, prefix: prefix}
}

// ParameterName returns the parameter holding settings for scope.
func (p *ParamStoreProvider) ParameterName(scope Scope) string {
	return path.Join(p.prefix, scope.OrganizationID, scope.AgentID)
}

func (p *ParamStoreProvider) Get(ctx context.Context, scope Scope) (Settings, error) {
	if err := scope.Validate(); err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := paramstore.GetJSON(ctx, p.getter, p.ParameterName(scope), &s); err != nil {
		return Settings{}, wrapScope(scope, err)
	}
	return s, nil
}
