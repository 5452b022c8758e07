package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const defaultTimeout = 60 * time.Second

// GeminiConfig configures the upstream client.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	MaxTokens      int
}

// requestIDTransport tags each upstream request so failures can be matched
// against provider-side logs.
type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Request-ID", uuid.NewString())
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// GeminiClient is an Upstream backed by the OpenAI-compatible Gemini API.
type GeminiClient struct {
	client    *openai.Client
	maxTokens int
}

// NewGeminiClient creates a client. Handles it returns share one HTTP client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	config := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	// go-openai appends "/chat/completions" itself
	config.BaseURL = strings.TrimSuffix(baseURL, "/")
	config.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &requestIDTransport{base: http.DefaultTransport},
	}

	L_debug("gemini: client created", "baseURL", config.BaseURL, "timeout", timeout, "maxTokens", cfg.MaxTokens)

	return &GeminiClient{
		client:    openai.NewClientWithConfig(config),
		maxTokens: cfg.MaxTokens,
	}
}

// Model returns a handle for name. No request is made.
func (c *GeminiClient) Model(name string) Model {
	return &geminiModel{client: c.client, name: name, maxTokens: c.maxTokens}
}

type geminiModel struct {
	client    *openai.Client
	name      string
	maxTokens int
}

func (m *geminiModel) Name() string {
	return m.name
}

func (m *geminiModel) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return m.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

func (m *geminiModel) StartChat(history []Turn) ChatSession {
	turns := make([]Turn, len(history))
	copy(turns, history)
	return &geminiChat{model: m, turns: turns}
}

func (m *geminiModel) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    m.name,
		Messages: messages,
	}
	if m.maxTokens > 0 {
		req.MaxTokens = m.maxTokens
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			L_debug("gemini: request failed",
				"model", m.name,
				"statusCode", apiErr.HTTPStatusCode,
				"message", apiErr.Message,
			)
		}
		return "", fmt.Errorf("gemini %s: %w", m.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// geminiChat keeps its own turn log. The endpoint is stateless, so each send
// replays the log plus the new message.
type geminiChat struct {
	model *geminiModel
	turns []Turn
}

func (s *geminiChat) SendMessage(ctx context.Context, text string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(s.turns)+1)
	for _, t := range s.turns {
		messages = append(messages, toOpenAIMessage(t))
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	reply, err := s.model.complete(ctx, messages)
	if err != nil {
		return "", err
	}
	s.turns = append(s.turns, Turn{Role: RoleUser, Text: text}, Turn{Role: RoleModel, Text: reply})
	return reply, nil
}

func toOpenAIMessage(t Turn) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleAssistant
	if t.Role == RoleUser {
		role = openai.ChatMessageRoleUser
	}
	return openai.ChatCompletionMessage{Role: role, Content: t.Text}
}
