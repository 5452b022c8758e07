// Package http serves the chat relay's JSON and websocket API.
package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/chat"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/history"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
)

// ChatService answers one chat request.
type ChatService interface {
	Handle(ctx context.Context, req chat.Request) chat.Response
}

// HistoryStore is the persistence the shell needs.
type HistoryStore interface {
	Recent(ctx context.Context, userID string, limit int) ([]history.StoredMessage, error)
	RecentMessages(ctx context.Context, userID string, limit int) ([]llm.Message, error)
	AppendExchange(ctx context.Context, userID, message, reply string) error
	Clear(ctx context.Context, userID string) (int64, error)
}

// ModelStatus exposes the resolver's state for /api/status.
type ModelStatus interface {
	Cached() string
	Candidates() []string
}

// Deps are the services the server routes to. History and Models may be nil.
type Deps struct {
	Chat          ChatService
	History       HistoryStore
	Models        ModelStatus
	HasCredential func() bool
	Version       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Listen        string  // Address to listen on (e.g., ":3000", "127.0.0.1:3000")
	RatePerSecond float64 // Chat requests per second per client; 0 disables limiting
	Burst         int
}

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	deps        Deps
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	started     time.Time
	wg          sync.WaitGroup
}

// NewServer creates a new HTTP server instance
func NewServer(cfg ServerConfig, deps Deps) *Server {
	listen := cfg.Listen
	if listen == "" {
		listen = ":3000"
	}
	if deps.HasCredential == nil {
		deps.HasCredential = func() bool { return true }
	}

	s := &Server{
		deps:        deps,
		rateLimiter: NewRateLimiter(cfg.RatePerSecond, cfg.Burst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		started: time.Now(),
	}

	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no WriteTimeout: a chat request may spend minutes in upstream retries
	}
	return s
}

// Handler returns the routed handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetRateLimit changes the per-client chat rate at runtime.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	s.rateLimiter.SetLimit(perSecond, burst)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Middleware chain: logging -> strip headers -> [rate limit] -> session
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(s.withSession(h)))
	}
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(s.rateLimit(s.withSession(h))))
	}

	mux.HandleFunc("POST /api/chat", limited(s.handleChat))
	mux.HandleFunc("GET /api/ws", limited(s.handleWS))
	mux.HandleFunc("GET /api/history", wrap(s.handleHistory))
	mux.HandleFunc("DELETE /api/history", wrap(s.handleClearHistory))
	mux.HandleFunc("GET /api/status", wrap(s.handleStatus))
	mux.HandleFunc("GET /api/metrics", wrap(s.handleMetrics))
	mux.HandleFunc("GET /healthz", s.logRequest(s.handleHealth))

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("http: server starting", "addr", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("http: server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		L_error("http: shutdown error", "error", err)
		return err
	}
	s.wg.Wait()
	L_info("http: server stopped")
	return nil
}

// logRequest wraps an HTTP handler to log requests
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		L_trace("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// loggingResponseWriter wraps ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so websocket upgrades work behind the logger.
func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: response writer does not support hijacking")
	}
	return h.Hijack()
}

// stripHeaders removes fingerprinting headers
func (s *Server) stripHeaders(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")
		handler(w, r)
	}
}
