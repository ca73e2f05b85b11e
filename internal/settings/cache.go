package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// CachedProvider is a Redis read-through cache in front of another Provider.
// Redis failures are logged and the source is consulted directly.
type CachedProvider struct {
	source Provider
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedProvider(source Provider, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedProvider {
	if source == nil {
		panic("settings: source provider cannot be nil")
	}
	if redisClient == nil {
		panic("settings: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{source: source, redis: redisClient, ttl: ttl, logger: logger}
}

func (p *CachedProvider) key(scope Scope) string {
	return fmt.Sprintf("relay:settings:%s:%s", scope.OrganizationID, scope.AgentID)
}

func (p *CachedProvider) Get(ctx context.Context, scope Scope) (Settings, error) {
	if err := scope.Validate(); err != nil {
		return Settings{}, err
	}

	data, err := p.redis.Get(ctx, p.key(scope)).Bytes()
	switch {
	case err == nil:
		var s Settings
		if jsonErr := json.Unmarshal(data, &s); jsonErr == nil {
			return s, nil
		}
		p.logger.Warn("discarding corrupt cached settings", "scope", scope.String())
	case !errors.Is(err, redis.Nil):
		p.logger.Warn("settings cache read failed", "scope", scope.String(), "error", err)
	}

	s, err := p.source.Get(ctx, scope)
	if err != nil {
		return Settings{}, err
	}
	if payload, err := json.Marshal(s); err == nil {
		if err := p.redis.Set(ctx, p.key(scope), payload, p.ttl).Err(); err != nil {
			p.logger.Warn("settings cache write failed", "scope", scope.String(), "error", err)
		}
	}
	return s, nil
}

// invalidate drops the cached settings for scope.
func (p *CachedProvider) invalidate(ctx context.Context, scope Scope) error {
	if err := p.redis.Del(ctx, p.key(scope)).Err(); err != nil {
		return fmt.Errorf("settings: invalidate %s: %w", scope, err)
	}
	return nil
}
