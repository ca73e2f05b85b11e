package messenger

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/messenger-relay/internal/settings"
)

var testScope = settings.Scope{OrganizationID: "acme", AgentID: "support"}

func fixedScope(*http.Request) settings.Scope { return testScope }

type recordingDispatcher struct {
	calls []dispatchCall
	err   error
}

type dispatchCall struct {
	scope    settings.Scope
	settings settings.Settings
	msgs     []InboundMessage
}

func (d *recordingDispatcher) Dispatch(_ context.Context, scope settings.Scope, s settings.Settings, msgs []InboundMessage) error {
	d.calls = append(d.calls, dispatchCall{scope: scope, settings: s, msgs: msgs})
	return d.err
}

func newHandler(s settings.Settings, d Dispatcher) *WebhookHandler {
	return NewWebhookHandler(settings.NewStaticProvider(s), d, fixedScope, nil, nil)
}

func TestHandleVerification(t *testing.T) {
	h := newHandler(settings.Settings{VerifyToken: "abc"}, &recordingDispatcher{})

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=abc&hub.challenge=xyz", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "xyz" {
			t.Fatalf("expected xyz, got %s", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhook?hub.verify_token=wrong&hub.challenge=xyz", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		if w.Body.String() != VerificationMismatch {
			t.Fatalf("unexpected body %q", w.Body.String())
		}
	})

	t.Run("settings unavailable", func(t *testing.T) {
		failing := settings.ProviderFunc(func(context.Context, settings.Scope) (settings.Settings, error) {
			return settings.Settings{}, errors.New("down")
		})
		h := NewWebhookHandler(failing, &recordingDispatcher{}, fixedScope, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/webhook?hub.verify_token=abc&hub.challenge=xyz", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", w.Code)
		}
	})
}

const deliveryBody = `{
  "object": "page",
  "entry": [{
    "id": "page_1",
    "time": 1700000000000,
    "messaging": [
      {"sender": {"id": "user_1"}, "recipient": {"id": "page_1"}, "timestamp": 1700000000000, "message": {"mid": "m_1", "text": "hello"}},
      {"sender": {"id": "user_2"}, "recipient": {"id": "page_1"}, "postback": {"title": "Start", "payload": "GET_STARTED"}},
      {"sender": {"id": "page_1"}, "recipient": {"id": "user_1"}, "message": {"mid": "m_2", "text": "echo", "is_echo": true}},
      {"sender": {"id": ""}, "recipient": {"id": "page_1"}, "message": {"mid": "m_3", "text": "orphan"}},
      {"sender": {"id": "user_3"}, "recipient": {"id": "page_1"}, "message": {"mid": "m_4", "text": ""}}
    ]
  }]
}`

func TestHandleInboundDispatchesValidMessages(t *testing.T) {
	d := &recordingDispatcher{}
	h := newHandler(settings.Settings{PageAccessToken: "pat"}, d)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryBody))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != AckBody {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
	if len(d.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(d.calls))
	}
	call := d.calls[0]
	if call.scope != testScope || call.settings.PageAccessToken != "pat" {
		t.Fatalf("unexpected dispatch scope/settings: %+v", call)
	}
	if len(call.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(call.msgs))
	}
	msg := call.msgs[0]
	if msg.SenderID != "user_1" || msg.RecipientID != "page_1" || msg.Text != "hello" || msg.MessageID != "m_1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Timestamp.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestHandleInboundWithoutMessagesStillAcknowledges(t *testing.T) {
	d := &recordingDispatcher{}
	h := newHandler(settings.Settings{}, d)

	body := `{"object":"page","entry":[{"id":"p","messaging":[{"sender":{"id":"u"},"recipient":{"id":"p"}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusOK || w.Body.String() != AckBody {
		t.Fatalf("expected ack, got %d %q", w.Code, w.Body.String())
	}
	if len(d.calls) != 0 {
		t.Fatalf("expected no dispatch, got %d", len(d.calls))
	}
}

func TestHandleInboundRejectsMalformedJSON(t *testing.T) {
	h := newHandler(settings.Settings{}, &recordingDispatcher{})
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"entry": [`))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleInboundRejectsOversizedBody(t *testing.T) {
	h := newHandler(settings.Settings{}, &recordingDispatcher{})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(make([]byte, maxWebhookBody+1)))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleInboundSignature(t *testing.T) {
	secret := "app_secret"
	d := &recordingDispatcher{}
	h := newHandler(settings.Settings{AppSecret: secret}, d)

	t.Run("invalid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryBody))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if len(d.calls) != 0 {
			t.Fatal("dispatch must not run for unsigned deliveries")
		}
	})

	t.Run("valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryBody))
		req.Header.Set("X-Hub-Signature-256", sign(secret, []byte(deliveryBody)))
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if len(d.calls) != 1 {
			t.Fatalf("expected dispatch, got %d", len(d.calls))
		}
	})
}

func TestHandleInboundDispatchFailure(t *testing.T) {
	h := newHandler(settings.Settings{}, &recordingDispatcher{err: errors.New("queue down")})
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryBody))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	event := WebhookEvent{Entry: []Entry{{
		ID: "page_1",
		Messaging: []Messaging{
			{Sender: Participant{ID: "u1"}, Recipient: Participant{ID: "p1"}, Message: &Message{Text: "hi"}},
			{Sender: Participant{ID: "u1"}, Recipient: Participant{ID: ""}, Message: &Message{Text: "hi"}},
			{Sender: Participant{ID: "u2"}, Recipient: Participant{ID: "p1"}},
		},
	}}}

	res := ParseWebhookEvent(event)
	if len(res.Messages) != 1 || res.Messages[0].SenderID != "u1" {
		t.Fatalf("unexpected messages %+v", res.Messages)
	}
	if !res.Messages[0].Timestamp.IsZero() {
		t.Fatalf("expected zero timestamp when absent, got %v", res.Messages[0].Timestamp)
	}
	if res.Ignored != 1 {
		t.Fatalf("ignored = %d, want 1", res.Ignored)
	}
	if len(res.Rejected) != 1 || !errors.Is(res.Rejected[0].Err, errMissingRecipient) || res.Rejected[0].Index != 1 {
		t.Fatalf("unexpected rejections %+v", res.Rejected)
	}
}
