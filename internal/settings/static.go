package settings

import "context"

// StaticProvider returns the same settings for every scope. It backs the
// env settings source and tests.
type StaticProvider struct {
	Settings Settings
}

func NewStaticProvider(s Settings) *StaticProvider {
	return &StaticProvider{Settings: s}
}

func (p *StaticProvider) Get(ctx context.Context, scope Scope) (Settings, error) {
	if err := scope.Validate(); err != nil {
		return Settings{}, err
	}
	return p.Settings, nil
}
