package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/messenger-relay/internal/settings"
)

type scopeKey struct{}

// withPathScope reads {organizationId}/{agentId} from the route and stores
// the scope on the request context.
func withPathScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := settings.Scope{
			OrganizationID: strings.TrimSpace(chi.URLParam(r, "organizationId")),
			AgentID:        strings.TrimSpace(chi.URLParam(r, "agentId")),
		}
		if err := scope.Validate(); err != nil {
			http.Error(w, "organizationId and agentId are required", http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), scopeKey{}, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ScopeResolver returns the scope stored by withPathScope, or fallback for
// the unscoped webhook route.
func ScopeResolver(fallback settings.Scope) func(*http.Request) settings.Scope {
	return func(r *http.Request) settings.Scope {
		if scope, ok := r.Context().Value(scopeKey{}).(settings.Scope); ok {
			return scope
		}
		return fallback
	}
}
