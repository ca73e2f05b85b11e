package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// Handler exposes recorded turn status over HTTP.
type Handler struct {
	turns  TurnReader
	logger *logging.Logger
}

// NewHandler creates a turn status handler.
func NewHandler(turns TurnReader, logger *logging.Logger) *Handler {
	if turns == nil {
		panic("relay: turn reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{turns: turns, logger: logger}
}

// GetTurn handles GET /turns/{turnId}.
func (h *Handler) GetTurn(w http.ResponseWriter, r *http.Request) {
	turnID := strings.TrimSpace(chi.URLParam(r, "turnId"))
	if turnID == "" {
		http.Error(w, "turnId is required", http.StatusBadRequest)
		return
	}

	rec, err := h.turns.GetTurn(r.Context(), turnID)
	if err != nil {
		if errors.Is(err, ErrTurnNotFound) {
			http.Error(w, "Turn not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load turn", "error", err, "turn_id", turnID)
		http.Error(w, "Failed to load turn", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
