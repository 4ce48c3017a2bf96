package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	"github.com/zhouzirui/z-arena/backend/internal/model/debate"
)

// DefaultTurnTimeout bounds a single streamed turn.
const DefaultTurnTimeout = 60 * time.Second

// HTTPError is a non-2xx answer from the relay.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

// ProviderInfo mirrors an entry of GET /api/providers.
type ProviderInfo struct {
	Name         string `json:"name"`
	Format       string `json:"format"`
	Configured   bool   `json:"configured"`
	RequiresKey  bool   `json:"requiresKey"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

// Client talks to the debate relay's HTTP API.
type Client struct {
	baseURL     string
	http        *http.Client
	TurnTimeout time.Duration
}

// New returns a client for the relay at baseURL, e.g. http://localhost:8080.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/") + "/api",
		http:        httpClient,
		TurnTimeout: DefaultTurnTimeout,
	}
}

// RequestTurn streams one debate turn. On cancellation the partial text
// is returned together with the context error so the caller can keep it.
func (c *Client) RequestTurn(ctx context.Context, req debate.TurnRequest, onFragment func(string)) (string, error) {
	if c.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.TurnTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode turn request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/debate/turn", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return "", decodeHTTPError(resp)
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		defer resp.Body.Close()
		var out struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("failed to decode turn response: %w", err)
		}
		if onFragment != nil && out.Content != "" {
			onFragment(out.Content)
		}
		return out.Content, nil
	}

	text, err := Consume(resp.Body, onFragment)
	if err != nil && ctx.Err() != nil {
		return text, ctx.Err()
	}
	return text, err
}

// CreateConversation starts a new debate.
func (c *Client) CreateConversation(ctx context.Context, topic string) (chat.Conversation, error) {
	var conv chat.Conversation
	err := c.doJSON(ctx, http.MethodPost, "/conversations", map[string]string{"topic": topic}, &conv)
	return conv, err
}

// SaveMessage appends a message to a conversation.
func (c *Client) SaveMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	var saved chat.Message
	err := c.doJSON(ctx, http.MethodPost, "/conversations/"+msg.ConversationID+"/messages", msg, &saved)
	return saved, err
}

// ListMessages returns the transcript of a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var messages []chat.Message
	err := c.doJSON(ctx, http.MethodGet, "/conversations/"+conversationID+"/messages", nil, &messages)
	return messages, err
}

// Providers lists the upstream providers the relay knows about.
func (c *Client) Providers(ctx context.Context) ([]ProviderInfo, error) {
	var providers []ProviderInfo
	err := c.doJSON(ctx, http.MethodGet, "/providers", nil, &providers)
	return providers, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeHTTPError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var envelope struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: message}
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}
