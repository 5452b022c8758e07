package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeGemini serves the OpenAI-compatible chat completions endpoint.
type fakeGemini struct {
	mu        sync.Mutex
	requests  []capturedRequest
	requestID []string
	status    int
	reply     string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req capturedRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.requestID = append(f.requestID, r.Header.Get("X-Request-ID"))
	status, reply := f.status, f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "The model is overloaded. Please try again later.", "code": status},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
	})
}

func newFakeGemini(t *testing.T, fake *fakeGemini) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL + "/", TimeoutSeconds: 5})
}

func TestGeminiGenerateContent(t *testing.T) {
	fake := &fakeGemini{reply: "pong"}
	client := newFakeGemini(t, fake)

	got, err := client.Model("gemini-2.0-flash").GenerateContent(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "gemini-2.0-flash", fake.requests[0].Model)
	require.Len(t, fake.requests[0].Messages, 1)
	assert.Equal(t, "user", fake.requests[0].Messages[0].Role)
	assert.Equal(t, "ping", fake.requests[0].Messages[0].Content)
	assert.NotEmpty(t, fake.requestID[0])
}

func TestGeminiChatReplaysTurns(t *testing.T) {
	fake := &fakeGemini{reply: "second answer"}
	client := newFakeGemini(t, fake)

	session := client.Model("m").StartChat([]Turn{
		{Role: RoleUser, Text: "first"},
		{Role: RoleModel, Text: "first answer"},
	})
	_, err := session.SendMessage(context.Background(), "second")
	require.NoError(t, err)
	_, err = session.SendMessage(context.Background(), "third")
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	roles := func(req capturedRequest) []string {
		out := make([]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			out = append(out, m.Role)
		}
		return out
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles(fake.requests[0]))
	assert.Equal(t, []string{"user", "assistant", "user", "assistant", "user"}, roles(fake.requests[1]))
	assert.Equal(t, "third", fake.requests[1].Messages[4].Content)
}

func TestGeminiFailedSendIsNotRecorded(t *testing.T) {
	fake := &fakeGemini{status: http.StatusServiceUnavailable}
	client := newFakeGemini(t, fake)

	session := client.Model("m").StartChat(nil)
	_, err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsOverloadError(err))
	assert.Equal(t, CategoryOverloaded, Classify(err))

	fake.mu.Lock()
	fake.status = http.StatusOK
	fake.reply = "hi"
	fake.mu.Unlock()

	got, err := session.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
	assert.Len(t, fake.requests[1].Messages, 1)
}

func TestGeminiErrorCarriesStatusCode(t *testing.T) {
	fake := &fakeGemini{status: http.StatusNotFound}
	client := newFakeGemini(t, fake)

	_, err := client.Model("gemini-missing").GenerateContent(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "gemini-missing")
}
