package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
)

const (
	wsReadLimit  = maxBodyBytes
	wsPongWait   = 90 * time.Second
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 60 * time.Second
)

// wsReply answers one inbound frame. ID echoes the client's id, if any.
type wsReply struct {
	ID    string `json:"id,omitempty"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

type wsRequest struct {
	ID string `json:"id,omitempty"`
	chatBody
}

// handleWS runs the chat over a websocket: each {message} frame gets one
// {reply} or {error} frame, in order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := getUserFromContext(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_debug("http: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	L_debug("http: websocket connected", "user", userID)
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.wsPing(conn, done)

	ip := getClientIP(r)
	ctx := context.WithoutCancel(r.Context())
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				L_debug("http: websocket read failed", "user", userID, "error", err)
			}
			return
		}

		out := wsReply{ID: req.ID}
		verr := req.validate()
		switch {
		case !s.rateLimiter.Allow(ip):
			out.Error = "Too many requests. Please slow down."
		case verr != nil:
			out.Error = verr.Error()
		default:
			resp := s.runChat(ctx, userID, req.chatBody)
			out.Reply, out.Error = resp.Reply, resp.Error
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(out); err != nil {
			L_debug("http: websocket write failed", "user", userID, "error", err)
			return
		}
		// generation may have outlasted the read deadline
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

// wsPing keeps idle connections alive until done closes.
func (s *Server) wsPing(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
