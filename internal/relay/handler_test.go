package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/messenger-relay/pkg/logging"
)

type stubTurnReader struct {
	records map[string]*TurnRecord
	err     error
}

func (s stubTurnReader) GetTurn(_ context.Context, turnID string) (*TurnRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[turnID]
	if !ok {
		return nil, ErrTurnNotFound
	}
	return rec, nil
}

func serveTurn(t *testing.T, reader TurnReader, turnID string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/turns/{turnId}", NewHandler(reader, logging.Default()).GetTurn)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/turns/"+turnID, nil))
	return rr
}

func TestHandlerGetTurn(t *testing.T) {
	reader := stubTurnReader{records: map[string]*TurnRecord{
		"m_1": {TurnID: "m_1", State: StateDelivered, Reply: "hello", ExpiresAt: 42},
	}}

	rr := serveTurn(t, reader, "m_1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["state"] != string(StateDelivered) || body["reply"] != "hello" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["expiresAt"]; ok {
		t.Fatal("expiry must not be exposed")
	}
}

func TestHandlerGetTurnErrors(t *testing.T) {
	if rr := serveTurn(t, stubTurnReader{}, "missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := serveTurn(t, stubTurnReader{err: errors.New("throttled")}, "m_1"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
