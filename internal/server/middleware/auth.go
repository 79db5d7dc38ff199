package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/console"
	"github.com/foliodesk/folio/internal/model"
)

type contextKeyAuth string

const (
	// ConsoleKey is the context key for the caller's console.
	ConsoleKey contextKeyAuth = "console"
	// TokenKey is the context key for the caller's bearer token.
	TokenKey contextKeyAuth = "token"
)

// ConsoleSource resolves a bearer token to the console of its session.
// *console.Manager implements it.
type ConsoleSource interface {
	Acquire(ctx context.Context, token string) (*console.Console, error)
}

// Authenticate returns an HTTP middleware that resolves the caller's session.
// The token comes from the Authorization header, or from the access_token
// query parameter for EventSource clients that cannot set headers.
//
// On success the console and token are attached to the request context. On
// failure a 401 JSON error response is returned.
func Authenticate(src ConsoleSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			c, err := src.Acquire(r.Context(), token)
			if err != nil {
				msg := auth.ErrInvalidToken.Error()
				if errors.Is(err, auth.ErrSessionExpired) {
					msg = auth.ErrSessionExpired.Error()
				}
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := context.WithValue(r.Context(), ConsoleKey, c)
			ctx = context.WithValue(ctx, TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns an HTTP middleware that enforces admin access.
// It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := GetConsole(r.Context())
			if c == nil || c.Phase() != console.PhaseAuthenticatedAdmin {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the session token from the request, or "".
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

// GetConsole extracts the caller's console from the context. Returns nil
// for unauthenticated requests.
func GetConsole(ctx context.Context) *console.Console {
	if c, ok := ctx.Value(ConsoleKey).(*console.Console); ok {
		return c
	}
	return nil
}

// GetToken extracts the caller's bearer token from the context.
func GetToken(ctx context.Context) string {
	if t, ok := ctx.Value(TokenKey).(string); ok {
		return t
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
