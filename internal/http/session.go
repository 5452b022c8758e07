package http

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
)

// SessionCookie carries the opaque id that scopes a visitor's history.
const SessionCookie = "flashbott_session"

const sessionMaxAge = 365 * 24 * 60 * 60

// contextKey is used for storing values in request context
type contextKey string

const userContextKey contextKey = "user"

// withSession middleware assigns every visitor a stable user id
func (s *Server) withSession(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				userID = id.String()
			}
		}
		if userID == "" {
			userID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    userID,
				Path:     "/",
				MaxAge:   sessionMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			L_debug("http: new session", "user", userID, "ip", getClientIP(r))
		}

		handler(w, r.WithContext(setUserInContext(r.Context(), userID)))
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For first (if behind reverse proxy), first hop only
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// getUserFromContext retrieves the session user id from request context
func getUserFromContext(r *http.Request) string {
	if id, ok := r.Context().Value(userContextKey).(string); ok {
		return id
	}
	return ""
}

// setUserInContext stores the user id in the context
func setUserInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}
