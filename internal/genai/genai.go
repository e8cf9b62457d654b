// Package genai provides GenAI-backed completions using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowdesk/flowdesk/internal/models"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 30 * time.Second

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// CompletionRequest carries one prompt pair plus optional tuning overrides.
type CompletionRequest struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// ClientInterface is the completion surface consumed by workflow executors.
type ClientInterface interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat    chatService
	model   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the default model used when a request does not name one.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// withChatService swaps the underlying completion service, for tests.
func withChatService(chat chatService) Option {
	return func(c *Client) { c.chat = chat }
}

// NewClient initializes a GenAI client with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		model:   openai.ChatModelGPT4oMini,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chat == nil {
		if apiKey == "" {
			return nil, models.ErrMissingAPIKey
		}
		cli := openai.NewClient(option.WithAPIKey(apiKey))
		c.chat = &cli.Chat.Completions
	}
	return c, nil
}

// Complete runs one chat completion and returns the trimmed assistant text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.ErrCompletionEmpty
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", models.ErrCompletionEmpty
	}
	slog.Debug("chat completion done", "model", model, "elapsed", time.Since(start), "chars", len(out))
	return out, nil
}
