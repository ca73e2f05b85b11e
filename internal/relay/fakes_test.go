package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/mavenagi"
	"github.com/wolfman30/messenger-relay/internal/settings"
)

type fakeBackend struct {
	mu sync.Mutex

	existing map[string]bool
	users    []mavenagi.AppUserRequest
	gets     []string
	inits    []mavenagi.ConversationRequest
	asks     []askCall

	getErr  error
	initErr error
	askErr  error
	userErr error
	answer  func(conversationID string, req mavenagi.AskRequest) *mavenagi.ConversationResponse
	askHook func()
}

type askCall struct {
	conversationID string
	req            mavenagi.AskRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{existing: map[string]bool{}}
}

func (b *fakeBackend) CreateOrUpdateUser(_ context.Context, req mavenagi.AppUserRequest) (*mavenagi.AppUser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, req)
	if b.userErr != nil {
		return nil, b.userErr
	}
	return &mavenagi.AppUser{UserID: mavenagi.EntityID{ReferenceID: req.UserID.ReferenceID}}, nil
}

func (b *fakeBackend) GetConversation(_ context.Context, id string) (*mavenagi.ConversationResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets = append(b.gets, id)
	if b.getErr != nil {
		return nil, b.getErr
	}
	if !b.existing[id] {
		return nil, &mavenagi.HTTPStatusError{StatusCode: 404}
	}
	return &mavenagi.ConversationResponse{ConversationID: mavenagi.EntityID{ReferenceID: id}}, nil
}

func (b *fakeBackend) InitializeConversation(_ context.Context, req mavenagi.ConversationRequest) (*mavenagi.ConversationResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inits = append(b.inits, req)
	if b.initErr != nil {
		return nil, b.initErr
	}
	b.existing[req.ConversationID.ReferenceID] = true
	return &mavenagi.ConversationResponse{ConversationID: mavenagi.EntityID{ReferenceID: req.ConversationID.ReferenceID}}, nil
}

func (b *fakeBackend) AskConversation(_ context.Context, id string, req mavenagi.AskRequest) (*mavenagi.ConversationResponse, error) {
	if b.askHook != nil {
		b.askHook()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asks = append(b.asks, askCall{conversationID: id, req: req})
	if b.askErr != nil {
		return nil, b.askErr
	}
	if b.answer != nil {
		return b.answer(id, req), nil
	}
	return botAnswer("answer to " + req.Text), nil
}

func (b *fakeBackend) counts() (users, gets, inits, asks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.users), len(b.gets), len(b.inits), len(b.asks)
}

type sentMessage struct {
	recipientID string
	text        string
}

type fakePlatform struct {
	mu sync.Mutex

	sent       []sentMessage
	typing     []time.Time
	profiles   map[string]string
	sendErr    error
	sendErrFor map[string]error
	profileErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{profiles: map[string]string{}}
}

func (p *fakePlatform) SendTextMessage(_ context.Context, recipientID, text string) (*messenger.SendResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sendErrFor[recipientID]; err != nil {
		return nil, err
	}
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	p.sent = append(p.sent, sentMessage{recipientID: recipientID, text: text})
	return &messenger.SendResponse{RecipientID: recipientID, MessageID: "out"}, nil
}

func (p *fakePlatform) SendTypingOn(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing = append(p.typing, time.Now())
	return nil
}

func (p *fakePlatform) GetUserProfile(_ context.Context, userID string) (*messenger.UserProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	name, ok := p.profiles[userID]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return &messenger.UserProfile{ID: userID, Name: name}, nil
}

func (p *fakePlatform) typingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.typing)
}

func (p *fakePlatform) sentMessages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sent...)
}

func botAnswer(texts ...string) *mavenagi.ConversationResponse {
	msg := mavenagi.ConversationMessage{Type: mavenagi.MessageTypeBot}
	for _, t := range texts {
		msg.Responses = append(msg.Responses, mavenagi.BotResponse{Type: mavenagi.ResponseTypeText, Text: t})
	}
	return &mavenagi.ConversationResponse{Messages: []mavenagi.ConversationMessage{
		{Type: mavenagi.MessageTypeUser, Text: "question"},
		msg,
	}}
}

var testScope = settings.Scope{OrganizationID: "acme", AgentID: "support"}

func fixedEnv(backend *fakeBackend, platform *fakePlatform, s settings.Settings) EnvBuilder {
	return func(scope settings.Scope, _ settings.Settings) Env {
		return Env{Scope: scope, Settings: s, Backend: backend, Platform: platform}
	}
}

type fakeProcessed struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeProcessed) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := provider + ":" + eventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	received []TurnRecord
	finished map[string]TurnResult
}

func (f *fakeRecorder) PutReceived(_ context.Context, rec *TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, *rec)
	return nil
}

func (f *fakeRecorder) MarkFinished(_ context.Context, turnID string, res TurnResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = map[string]TurnResult{}
	}
	f.finished[turnID] = res
	return nil
}
