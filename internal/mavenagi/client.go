package mavenagi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultBaseURL = "https://www.mavenagi-apis.com"
	maxErrorBody   = 2048
)

// Client talks to the Maven AGI REST API with app credentials.
// Use Agent to obtain a client scoped to one organization/agent pair.
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (timeouts, transports, tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a backend client. An empty baseURL uses DefaultBaseURL.
// The default HTTP client sets no overall timeout: an ask can legitimately
// run for many minutes, so callers bound each call through ctx.
func NewClient(baseURL, appID, appSecret string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		appID:      appID,
		appSecret:  appSecret,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Agent returns a client bound to organizationID/agentID. It shares the
// underlying HTTP client and is cheap to create per request.
func (c *Client) Agent(organizationID, agentID string) *AgentClient {
	return &AgentClient{client: c, organizationID: organizationID, agentID: agentID}
}

// AgentClient issues calls on behalf of one organization/agent pair.
type AgentClient struct {
	client         *Client
	organizationID string
	agentID        string
}

// CreateOrUpdateUser upserts an app user (users.createOrUpdate).
func (a *AgentClient) CreateOrUpdateUser(ctx context.Context, req AppUserRequest) (*AppUser, error) {
	if req.Identifiers == nil {
		req.Identifiers = []AppUserIdentifier{}
	}
	if req.Data == nil {
		req.Data = map[string]UserData{}
	}
	var out AppUser
	if err := a.do(ctx, http.MethodPut, "/v1/users", req, &out); err != nil {
		return nil, fmt.Errorf("mavenagi: create or update user: %w", err)
	}
	return &out, nil
}

// GetConversation fetches a conversation by reference id. A missing
// conversation yields an error matching ErrNotFound.
func (a *AgentClient) GetConversation(ctx context.Context, conversationID string) (*ConversationResponse, error) {
	var out ConversationResponse
	if err := a.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return nil, fmt.Errorf("mavenagi: get conversation: %w", err)
	}
	return &out, nil
}

// InitializeConversation creates a conversation (conversation.initialize).
func (a *AgentClient) InitializeConversation(ctx context.Context, req ConversationRequest) (*ConversationResponse, error) {
	if req.Messages == nil {
		req.Messages = []ConversationMessageRequest{}
	}
	var out ConversationResponse
	if err := a.do(ctx, http.MethodPost, "/v1/conversations", req, &out); err != nil {
		return nil, fmt.Errorf("mavenagi: initialize conversation: %w", err)
	}
	return &out, nil
}

// AskConversation submits a user question and returns the updated
// conversation including the generated answer.
func (a *AgentClient) AskConversation(ctx context.Context, conversationID string, req AskRequest) (*ConversationResponse, error) {
	var out ConversationResponse
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/ask"
	if err := a.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, fmt.Errorf("mavenagi: ask: %w", err)
	}
	return &out, nil
}

// GetAppSettings returns the raw app settings stored for this agent.
func (a *AgentClient) GetAppSettings(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := a.do(ctx, http.MethodGet, "/v1/app-settings", nil, &out); err != nil {
		return nil, fmt.Errorf("mavenagi: get app settings: %w", err)
	}
	return out, nil
}

func (a *AgentClient) do(ctx context.Context, method, path string, body, out any) error {
	if a == nil || a.client == nil {
		return errors.New("client not initialized")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := a.client.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(a.client.appID, a.client.appSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Organization-Id", a.organizationID)
	req.Header.Set("X-Agent-Id", a.agentID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: endpoint, Body: snippet}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
