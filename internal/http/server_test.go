package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/chat"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/history"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
)

// echoChat replies "echo: <message>" and records what it was asked.
type echoChat struct {
	mu       sync.Mutex
	requests []chat.Request
	fail     *chat.Response
}

func (e *echoChat) Handle(_ context.Context, req chat.Request) chat.Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if e.fail != nil {
		return *e.fail
	}
	if strings.TrimSpace(req.Message) == "" {
		return chat.Response{Error: "Message is required.", Kind: chat.KindClientError, State: chat.StateFailed}
	}
	return chat.Response{Reply: "echo: " + req.Message, State: chat.StateSuccess, Model: "m"}
}

func (e *echoChat) last() chat.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

type staticModels struct{}

func (staticModels) Cached() string       { return "gemini-2.0-flash" }
func (staticModels) Candidates() []string { return llm.DefaultCandidates }

type testEnv struct {
	srv   *Server
	chat  *echoChat
	store *history.Store
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := &echoChat{}
	srv := NewServer(cfg, Deps{
		Chat:          c,
		History:       store,
		Models:        staticModels{},
		HasCredential: func() bool { return true },
		Version:       "test",
	})
	return &testEnv{srv: srv, chat: c, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChatPersistsAndReusesHistory(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message": "hello"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo: hello", decode[map[string]string](t, rec)["reply"])
	cookie := sessionCookie(t, rec)

	rec = env.do(t, http.MethodPost, "/api/chat", `{"message": "again"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []llm.Message{
		{Sender: llm.SenderUser, Text: "hello"},
		{Sender: llm.SenderBot, Text: "echo: hello"},
	}, env.chat.last().History)
	assert.Equal(t, cookie.Value, env.chat.last().UserID)

	n, err := env.store.Count(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestChatExplicitHistoryWins(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message": "q", "history": []}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.chat.last().History)

	rec = env.do(t, http.MethodPost, "/api/chat",
		`{"message": "q", "history": [{"sender": "user", "text": "a"}, {"sender": "bot", "text": "b"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.chat.last().History, 2)
}

func TestChatTrimsLongHistory(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	msgs := make([]llm.Message, 45)
	for i := range msgs {
		msgs[i] = llm.Message{Sender: llm.SenderUser, Text: "m"}
	}
	msgs[44].Text = "newest"
	raw, err := json.Marshal(map[string]any{"message": "q", "history": msgs})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/chat", string(raw), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := env.chat.last().History
	require.Len(t, got, history.MaxHistory)
	assert.Equal(t, "newest", got[len(got)-1].Text)
}

func TestChatBadRequests(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/chat", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat", `{"message": "x", "history": [{"sender": "system", "text": "y"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat", `{"message": "  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message is required.", decode[map[string]string](t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/chat", ``, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatFailureIsNotPersisted(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.chat.fail = &chat.Response{Error: "The AI service is temporarily overloaded. Please try again in a moment.", Kind: chat.KindOverloaded, State: chat.StateFailed}

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message": "hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Contains(t, body["error"], "overloaded")
	assert.NotContains(t, body, "reply")

	cookie := sessionCookie(t, rec)
	n, err := env.store.Count(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	rec := env.do(t, http.MethodPost, "/api/chat", `{"message": "hello"}`, nil)
	cookie := sessionCookie(t, rec)

	rec = env.do(t, http.MethodGet, "/api/history", ``, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Messages []history.StoredMessage `json:"messages"`
	}](t, rec)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Text)

	rec = env.do(t, http.MethodDelete, "/api/history", ``, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]int](t, rec)["deleted"])

	rec = env.do(t, http.MethodGet, "/api/history", ``, cookie)
	assert.Empty(t, decode[map[string][]history.StoredMessage](t, rec)["messages"])
}

func TestStatusMetricsHealth(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodGet, "/api/status", ``, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusBody](t, rec)
	assert.Equal(t, "gemini-2.0-flash", status.Model)
	assert.True(t, status.Credential)
	assert.True(t, status.History)
	assert.Equal(t, "test", status.Version)

	rec = env.do(t, http.MethodGet, "/api/metrics", ``, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "metrics")

	rec = env.do(t, http.MethodGet, "/healthz", ``, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRateLimitPerClient(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RatePerSecond: 0.001, Burst: 1})

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message": "one"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/chat", `{"message": "two"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// status is not limited
	rec = env.do(t, http.MethodGet, "/api/status", ``, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.srv.SetRateLimit(0, 0)
	rec = env.do(t, http.MethodPost, "/api/chat", `{"message": "three"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidSessionCookieIsReplaced(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	rec := env.do(t, http.MethodGet, "/api/status", ``, &http.Cookie{Name: SessionCookie, Value: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", sessionCookie(t, rec).Value)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", getClientIP(r))
}

func TestWebSocketChat(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "1", "message": "hi"}))
	var out wsReply
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "1", out.ID)
	assert.Equal(t, "echo: hi", out.Reply)

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "2", "message": ""}))
	out = wsReply{}
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "Message is required.", out.Error)
	assert.Empty(t, out.Reply)
}
