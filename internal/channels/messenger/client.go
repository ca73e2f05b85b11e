package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGraphAPIBase = "https://graph.facebook.com/v12.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Client sends messages and sender actions via the Graph API on behalf of
// one page.
type Client struct {
	pageAccessToken string
	graphAPIBase    string
	httpClient      *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithGraphAPIBase overrides the Graph API base URL.
func WithGraphAPIBase(base string) ClientOption {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.graphAPIBase = base
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a Graph API client authenticated with pageAccessToken.
func NewClient(pageAccessToken string, opts ...ClientOption) *Client {
	c := &Client{
		pageAccessToken: pageAccessToken,
		graphAPIBase:    DefaultGraphAPIBase,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendTextMessage sends a plain text message to the given recipient.
func (c *Client) SendTextMessage(ctx context.Context, recipientID, text string) (*SendResponse, error) {
	return c.send(ctx, SendRequest{
		Recipient: Participant{ID: recipientID},
		Message:   &SendMessage{Text: text},
	})
}

// SendTypingOn shows the typing indicator to the recipient.
func (c *Client) SendTypingOn(ctx context.Context, recipientID string) error {
	_, err := c.send(ctx, SendRequest{
		Recipient:    Participant{ID: recipientID},
		SenderAction: SenderActionTypingOn,
	})
	return err
}

// GetUserProfile fetches the name and email of a page-scoped user.
func (c *Client) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	endpoint := fmt.Sprintf("%s/%s?%s", c.graphAPIBase, url.PathEscape(userID), url.Values{
		"fields":       {"name,email"},
		"access_token": {c.pageAccessToken},
	}.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("messenger: create profile request: %w", err)
	}

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messenger: get profile: %w", err)
	}

	var profile UserProfile
	if err := json.Unmarshal(respBody, &profile); err != nil {
		return nil, fmt.Errorf("messenger: unmarshal profile: %w", err)
	}
	if profile.Error != nil {
		return nil, fmt.Errorf("messenger: API error %d: %s", profile.Error.Code, profile.Error.Message)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("messenger: unexpected status %d: %s", status, string(respBody))
	}
	return &profile, nil
}

func (c *Client) send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?%s", c.graphAPIBase, url.Values{"access_token": {c.pageAccessToken}}.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("messenger: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messenger: send message: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("messenger: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("messenger: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}

	if status != http.StatusOK {
		return &sendResp, fmt.Errorf("messenger: unexpected status %d: %s", status, string(respBody))
	}

	return &sendResp, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
