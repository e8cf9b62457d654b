package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowdesk/flowdesk/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func newTestClient(t *testing.T, chat chatService) *Client {
	t.Helper()
	c, err := NewClient("", withChatService(chat))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  Hello World \n"}},
		},
	}}
	client := newTestClient(t, mock)
	out, err := client.Complete(context.Background(), CompletionRequest{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected trimmed 'Hello World', got %q", out)
	}
	if mock.params.Model != openai.ChatModelGPT4oMini {
		t.Errorf("expected default model, got %q", mock.params.Model)
	}
}

func TestComplete_ModelOverride(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "ok"}},
		},
	}}
	client := newTestClient(t, mock)
	_, err := client.Complete(context.Background(), CompletionRequest{User: "usr", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.params.Model != "gpt-4o" {
		t.Errorf("expected model override, got %q", mock.params.Model)
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := newTestClient(t, &mockChatService{err: errors.New("service failure")})
	_, err := client.Complete(context.Background(), CompletionRequest{User: "usr"})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(t, &mockChatService{resp: &openai.ChatCompletion{}})
	_, err := client.Complete(context.Background(), CompletionRequest{User: "usr"})
	if !errors.Is(err, models.ErrCompletionEmpty) {
		t.Errorf("expected ErrCompletionEmpty, got %v", err)
	}
}

func TestComplete_BlankContent(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "   "}},
		},
	}}
	client := newTestClient(t, mock)
	_, err := client.Complete(context.Background(), CompletionRequest{User: "usr"})
	if !errors.Is(err, models.ErrCompletionEmpty) {
		t.Errorf("expected ErrCompletionEmpty, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient("")
	if !errors.Is(err, models.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient("test-key", WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.timeout != 5*time.Second {
		t.Errorf("expected timeout option applied, got %v", cli.timeout)
	}
}
