package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-arena/backend/internal/config"
)

const errorBodyLimit = 4 << 10

// Target selects the upstream provider and model for one completion.
type Target struct {
	Provider string
	Model    string
	APIKey   string
}

// Params holds generation parameters.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Service opens streaming completions against the configured providers.
type Service struct {
	cfg    config.ProvidersConfig
	client *http.Client
}

// NewService creates the upstream adapter. A nil client gets a default
// one whose only deadline is on response headers, so long streams are
// bounded by the caller's context instead.
func NewService(cfg config.ProvidersConfig, client *http.Client) *Service {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	return &Service{cfg: cfg, client: client}
}

// NewHTTPClient builds the client used for upstream calls.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   8,
		},
	}
}

// Open sends the completion request and returns the fragment stream.
// Configuration and request failures are reported here, before any
// fragment exists.
func (s *Service) Open(ctx context.Context, target Target, prompt []*schema.Message, params Params) (Stream, error) {
	provider := normalizeProvider(target.Provider)
	if provider == ProviderArk {
		return s.openArk(ctx, target, prompt, params)
	}
	if strings.TrimSpace(target.Model) == "" {
		return nil, &ConfigError{Provider: provider, Reason: "model is required"}
	}

	format, err := FormatFor(provider)
	if err != nil {
		return nil, err
	}
	ep, err := s.endpointFor(provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := ep.resolveKey(provider, target.APIKey)
	if err != nil {
		return nil, err
	}

	req, err := s.buildRequest(ctx, format, provider, ep.baseURL, apiKey, target.Model, prompt, params)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: provider, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError(provider, resp)
	}

	log.Printf("[ai] opened %s stream model=%s format=%s", provider, target.Model, format)
	return newWireStream(provider, format, resp.Body), nil
}

func (s *Service) openArk(ctx context.Context, target Target, prompt []*schema.Message, params Params) (Stream, error) {
	chatModel, err := s.cfg.Ark.NewChatModel(ctx, target.Model, target.APIKey)
	if err != nil {
		return nil, &ConfigError{Provider: ProviderArk, Reason: err.Error()}
	}

	opts := []model.Option{model.WithTemperature(float32(params.Temperature))}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}

	reader, err := chatModel.Stream(ctx, prompt, opts...)
	if err != nil {
		return nil, &RequestError{Provider: ProviderArk, Err: err}
	}

	log.Printf("[ai] opened ark stream model=%s", target.Model)
	return newMessageStream(ProviderArk, reader), nil
}

func (s *Service) buildRequest(ctx context.Context, format Format, provider, baseURL, apiKey, modelName string, prompt []*schema.Message, params Params) (*http.Request, error) {
	var (
		url  string
		body any
	)
	base := strings.TrimSuffix(baseURL, "/")

	switch format {
	case FormatCloudSSE:
		url = base + "/chat/completions"
		body = openAIRequest{
			Model:       modelName,
			Messages:    toWireMessages(prompt),
			Stream:      true,
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
		}
	case FormatAnthropicSSE:
		system, messages := toAnthropicMessages(prompt)
		maxTokens := params.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		url = base + "/v1/messages"
		body = anthropicRequest{
			Model:       modelName,
			System:      system,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: params.Temperature,
			Stream:      true,
		}
	case FormatNDJSON:
		url = base + "/api/chat"
		body = ollamaRequest{
			Model:    modelName,
			Messages: toWireMessages(prompt),
			Stream:   true,
			Options: ollamaOptions{
				Temperature: params.Temperature,
				NumPredict:  params.MaxTokens,
			},
		}
	default:
		return nil, &ConfigError{Provider: provider, Reason: fmt.Sprintf("unsupported format %s", format)}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Provider: provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	switch format {
	case FormatAnthropicSSE:
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", s.cfg.Anthropic.Version)
	case FormatCloudSSE:
		req.Header.Set("Accept", "text/event-stream")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		if provider == ProviderOpenRouter {
			req.Header.Set("X-Title", "z-arena")
		}
	case FormatNDJSON:
		req.Header.Set("Accept", "application/x-ndjson")
	}
	return req, nil
}

func newStatusError(provider string, resp *http.Response) *RequestError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	body := strings.TrimSpace(string(raw))

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(raw, &envelope); err == nil {
		message = errorMessage(envelope.Error)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &RequestError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    message,
		Body:       body,
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

func toWireMessages(prompt []*schema.Message) []wireMessage {
	out := make([]wireMessage, 0, len(prompt))
	for _, msg := range prompt {
		if msg == nil {
			continue
		}
		out = append(out, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// toAnthropicMessages hoists system messages into the top-level system
// field and merges consecutive same-role messages, since the messages
// API requires strict user/assistant alternation.
func toAnthropicMessages(prompt []*schema.Message) (string, []wireMessage) {
	var system []string
	out := make([]wireMessage, 0, len(prompt))

	for _, msg := range prompt {
		if msg == nil {
			continue
		}
		if msg.Role == schema.System {
			system = append(system, msg.Content)
			continue
		}

		role := "user"
		if msg.Role == schema.Assistant {
			role = "assistant"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, wireMessage{Role: role, Content: msg.Content})
	}

	if len(out) > 0 && out[0].Role == "assistant" {
		out = append([]wireMessage{{Role: "user", Content: "(continue)"}}, out...)
	}
	return strings.Join(system, "\n\n"), out
}
