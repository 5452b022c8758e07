package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/chat"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/history"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
)

// maxBodyBytes bounds a chat request body (30 messages plus the new one).
const maxBodyBytes = 256 << 10

type errorBody struct {
	Error string `json:"error"`
}

// chatBody is the inbound chat payload. A nil History means the client
// left it out and the stored history is used.
type chatBody struct {
	Message string         `json:"message"`
	History *[]llm.Message `json:"history,omitempty"`
}

func (b chatBody) validate() error {
	if b.History == nil {
		return nil
	}
	for i, m := range *b.History {
		if !m.Sender.Valid() {
			return fmt.Errorf("history[%d]: sender must be \"user\" or \"bot\"", i)
		}
	}
	return nil
}

// handleChat relays one message to the model
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		L_debug("http: bad chat body", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body."})
		return
	}
	if err := body.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	// a started request runs to completion even if the client goes away
	ctx := context.WithoutCancel(r.Context())
	resp := s.runChat(ctx, getUserFromContext(r), body)
	writeJSON(w, resp.HTTPStatus(), resp)
}

// runChat loads history when needed, runs the orchestrator and persists a
// successful exchange.
func (s *Server) runChat(ctx context.Context, userID string, body chatBody) chat.Response {
	var msgs []llm.Message
	if body.History != nil {
		msgs = *body.History
	} else if s.deps.History != nil {
		stored, err := s.deps.History.RecentMessages(ctx, userID, history.MaxHistory)
		if err != nil {
			L_warn("http: loading history failed, continuing without", "user", userID, "error", err)
		}
		msgs = stored
	}

	resp := s.deps.Chat.Handle(ctx, chat.Request{
		Message: body.Message,
		History: llm.TrimHistory(msgs, history.MaxHistory),
		UserID:  userID,
	})
	MetricOutcome("http", "chat", strconv.Itoa(resp.HTTPStatus()))

	if resp.OK() && s.deps.History != nil {
		if err := s.deps.History.AppendExchange(ctx, userID, body.Message, resp.Reply); err != nil {
			L_error("http: saving exchange failed", "user", userID, "error", err)
		}
	}
	return resp
}

// handleHistory returns the session user's recent messages
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "History is disabled."})
		return
	}
	msgs, err := s.deps.History.Recent(r.Context(), getUserFromContext(r), history.MaxHistory)
	if err != nil {
		L_error("http: history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to load history."})
		return
	}
	if msgs == nil {
		msgs = []history.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleClearHistory deletes the session user's messages
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "History is disabled."})
		return
	}
	userID := getUserFromContext(r)
	n, err := s.deps.History.Clear(r.Context(), userID)
	if err != nil {
		L_error("http: history clear failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to clear history."})
		return
	}
	L_info("http: history cleared", "user", userID, "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

type statusBody struct {
	Status     string   `json:"status"`
	Version    string   `json:"version,omitempty"`
	Model      string   `json:"model,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Credential bool     `json:"credential"`
	History    bool     `json:"history"`
	Uptime     string   `json:"uptime"`
}

// handleStatus reports the cached model and configuration state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := statusBody{
		Status:     "ok",
		Version:    s.deps.Version,
		Credential: s.deps.HasCredential(),
		History:    s.deps.History != nil,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Models != nil {
		body.Model = s.deps.Models.Cached()
		body.Candidates = s.deps.Models.Candidates()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleMetrics returns the metrics snapshot
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"metrics": GetInstance().GetSnapshot()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_debug("http: write response failed", "error", err)
	}
}
