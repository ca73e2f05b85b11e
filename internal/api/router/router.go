package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	httpmiddleware "github.com/wolfman30/messenger-relay/internal/http/middleware"
	"github.com/wolfman30/messenger-relay/internal/relay"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *messenger.WebhookHandler
	Turns          *relay.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Get("/webhook", cfg.Webhook.HandleVerification)
		r.Post("/webhook", cfg.Webhook.HandleInbound)
		r.Route("/{organizationId}/{agentId}/webhook", func(scoped chi.Router) {
			scoped.Use(withPathScope)
			scoped.Get("/", cfg.Webhook.HandleVerification)
			scoped.Post("/", cfg.Webhook.HandleInbound)
		})
	}

	if cfg.Turns != nil {
		r.Get("/turns/{turnId}", cfg.Turns.GetTurn)
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
