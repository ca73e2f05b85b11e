package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/messenger-relay/internal/config"
	"github.com/wolfman30/messenger-relay/internal/integrations/paramstore"
	"github.com/wolfman30/messenger-relay/internal/mavenagi"
	"github.com/wolfman30/messenger-relay/internal/settings"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// BuildMavenClient creates the Maven AGI client. When MAVENAGI_APP_SECRET_PARAM
// is set the secret is read from Parameter Store and overrides
// MAVENAGI_APP_SECRET.
func BuildMavenClient(ctx context.Context, cfg *appconfig.Config, getter paramstore.Getter, logger *logging.Logger) (*mavenagi.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	secret := cfg.MavenAppSecret
	if param := strings.TrimSpace(cfg.MavenAppSecretParam); param != "" {
		if getter == nil {
			return nil, fmt.Errorf("bootstrap: parameter store required to resolve %s", param)
		}
		value, err := getter.GetParameter(ctx, param)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: resolve maven app secret: %w", err)
		}
		secret = value
		logger.Info("maven app secret loaded from parameter store", "parameter", param)
	}

	if strings.TrimSpace(cfg.MavenAppID) == "" || strings.TrimSpace(secret) == "" {
		logger.Warn("maven app credentials are empty; backend calls will be rejected")
	}
	// A turn may wait on one ask for its whole budget.
	httpClient := &http.Client{Timeout: cfg.TurnTimeout}
	return mavenagi.NewClient(cfg.MavenBaseURL, cfg.MavenAppID, secret, mavenagi.WithHTTPClient(httpClient)), nil
}

// BuildSettingsProvider selects the settings source named by SETTINGS_SOURCE
// and wraps it in the Redis cache when a client is available.
func BuildSettingsProvider(cfg *appconfig.Config, maven *mavenagi.Client, getter paramstore.Getter, redisClient *redis.Client, logger *logging.Logger) (settings.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var source settings.Provider
	switch cfg.SettingsSource {
	case "", appconfig.SettingsSourceMaven:
		if maven == nil {
			return nil, fmt.Errorf("bootstrap: maven client required for settings source %q", appconfig.SettingsSourceMaven)
		}
		source = settings.NewMavenProvider(maven)
	case appconfig.SettingsSourceSSM:
		if getter == nil {
			return nil, fmt.Errorf("bootstrap: parameter store required for settings source %q", appconfig.SettingsSourceSSM)
		}
		source = settings.NewParamStoreProvider(getter, cfg.SettingsParamPrefix)
	case appconfig.SettingsSourceEnv:
		source = settings.NewStaticProvider(settings.Settings{
			VerifyToken:      cfg.MessengerVerifyToken,
			PageAccessToken:  cfg.MessengerPageToken,
			ConversationTags: cfg.ConversationTags,
			AppSecret:        cfg.MessengerAppSecret,
		})
	default:
		return nil, fmt.Errorf("bootstrap: unknown settings source %q", cfg.SettingsSource)
	}
	logger.Info("settings source selected", "source", cfg.SettingsSource)

	if redisClient == nil {
		return source, nil
	}
	logger.Info("settings cache enabled", "ttl", cfg.SettingsCacheTTL.String())
	return settings.NewCachedProvider(source, redisClient, cfg.SettingsCacheTTL, logger), nil
}
