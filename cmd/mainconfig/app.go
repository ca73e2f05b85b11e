package mainconfig

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/messenger-relay/internal/api/router"
	"github.com/wolfman30/messenger-relay/internal/app/bootstrap"
	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	appconfig "github.com/wolfman30/messenger-relay/internal/config"
	"github.com/wolfman30/messenger-relay/internal/events"
	"github.com/wolfman30/messenger-relay/internal/integrations/paramstore"
	"github.com/wolfman30/messenger-relay/internal/observability/metrics"
	"github.com/wolfman30/messenger-relay/internal/relay"
	"github.com/wolfman30/messenger-relay/internal/settings"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// App is the wired relay shared by the API server, the Lambda entry point
// and the queue worker.
type App struct {
	Handler  http.Handler
	Relay    *relay.Relay
	Settings settings.Provider
	Dispatch bootstrap.Dispatch
	AWS      *AWSClients

	redis *redis.Client
	pool  *pgxpool.Pool
}

// Close releases connections opened by BuildApp.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// BuildApp wires every relay component from cfg.
func BuildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mainconfig: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{}

	var getter paramstore.Getter
	if cfg.NeedsAWS() {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mainconfig: load aws config: %w", err)
		}
		clients := NewAWSClients(awsCfg)
		app.AWS = &clients

		store, err := paramstore.New(clients.SSM)
		if err != nil {
			return nil, err
		}
		getter = store
	}

	maven, err := bootstrap.BuildMavenClient(ctx, cfg, getter, logger)
	if err != nil {
		return nil, err
	}

	app.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	provider, err := bootstrap.BuildSettingsProvider(cfg, maven, getter, app.redis, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Settings = provider

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.NewRelayMetrics(reg)

	deps := bootstrap.RelayDeps{Metrics: relayMetrics}
	if app.pool = bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger); app.pool != nil {
		deps.Processed = events.NewProcessedStore(app.pool)
	}
	if table := strings.TrimSpace(cfg.TurnsTable); table != "" && app.AWS != nil {
		deps.Turns = relay.NewTurnStore(app.AWS.DynamoDB, table, logger)
	}

	app.Relay, err = bootstrap.BuildRelay(cfg, maven, deps, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	var sqsClient *sqs.Client
	if app.AWS != nil {
		sqsClient = app.AWS.SQS
	}
	app.Dispatch, err = bootstrap.BuildDispatch(cfg, app.Relay, provider, sqsClient, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	defaultScope := settings.Scope{OrganizationID: cfg.DefaultOrganizationID, AgentID: cfg.DefaultAgentID}
	routerCfg := &router.Config{
		Logger:         logger,
		Webhook:        messenger.NewWebhookHandler(provider, app.Dispatch.Dispatcher, router.ScopeResolver(defaultScope), relayMetrics, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if deps.Turns != nil {
		routerCfg.Turns = relay.NewHandler(deps.Turns, logger)
	}
	app.Handler = router.New(routerCfg)

	return app, nil
}
