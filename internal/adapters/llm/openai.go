// Package llm talks to chat-completion backends and picks the model for each
// activity through the model selector.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Request is one chat completion call.
type Request struct {
	Model  string
	System string
	User   string
}

// Completer produces the assistant text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAI is a Completer for any OpenAI-compatible endpoint.
type OpenAI struct {
	client      openai.Client
	temperature float64
}

type openAIConfig struct {
	apiKey      string
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	temperature float64
	httpClient  *http.Client
}

// OpenAIOption configures an OpenAI completer.
type OpenAIOption func(*openAIConfig)

// WithAPIKey sets the bearer key.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openAIConfig) { c.apiKey = key }
}

// WithBaseURL points the client at a compatible gateway.
func WithBaseURL(u string) OpenAIOption {
	return func(c *openAIConfig) {
		if u != "" && !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithTimeout bounds each request, retries included.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(c *openAIConfig) { c.temperature = t }
}

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAI builds a completer. With no key the client falls back to the
// OPENAI_API_KEY environment variable.
func NewOpenAI(opts ...OpenAIOption) *OpenAI {
	cfg := openAIConfig{
		timeout:     60 * time.Second,
		maxRetries:  2,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ropts := []option.RequestOption{
		option.WithRequestTimeout(cfg.timeout),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.apiKey != "" {
		ropts = append(ropts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		ropts = append(ropts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		ropts = append(ropts, option.WithHTTPClient(cfg.httpClient))
	}

	return &OpenAI{
		client:      openai.NewClient(ropts...),
		temperature: cfg.temperature,
	}
}

// Complete sends the system and user prompts and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.System) == "" && strings.TrimSpace(req.User) == "" {
		return "", ErrEmptyPrompt
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	if req.User != "" {
		msgs = append(msgs, openai.UserMessage(req.User))
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion %s: %w", req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
