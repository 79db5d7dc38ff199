package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/console"
	"github.com/foliodesk/folio/internal/model"
	"github.com/foliodesk/folio/internal/server/middleware"
	"github.com/foliodesk/folio/internal/session"
)

// Sessions opens and closes operator sessions. *console.Manager implements it.
type Sessions interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, *console.Console, error)
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context, token string)
}

// Verifier confirms sign-up tokens. *auth.Service implements it.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.User, error)
}

// AuthHandler serves sign-up, verification, and the session endpoints.
type AuthHandler struct {
	sessions Sessions
	verifier Verifier
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions Sessions, verifier Verifier, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{sessions: sessions, verifier: verifier, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse is returned on sign-in and by GET /auth/session.
type sessionResponse struct {
	AccessToken string        `json:"access_token,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	User        *model.User   `json:"user"`
	IsAdmin     bool          `json:"is_admin"`
	Phase       console.Phase `json:"phase"`
}

// SignUp handles POST /api/v1/auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.sessions.SignUp(r.Context(), req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			writeFieldError(w, "email", err.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			writeFieldError(w, "password", err.Error())
		case errors.Is(err, auth.ErrUserExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("sign up failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Sign up failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Check your email to confirm your account.",
	})
}

// Verify handles POST and GET /api/v1/auth/verify. The token comes from the
// JSON body or the token query parameter of the emailed link.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost && token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		token = req.Token
	}

	u, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid or already used verification token")
			return
		}
		h.logger.Error("verify failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u, "verified": true})
}

// SignIn handles POST /api/v1/auth/session. The response carries the bearer
// token and the resolved admin flag; the console is already running for
// admins when it returns.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	sess, c, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrEmailNotConfirmed):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.logger.Error("sign in failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Sign in failed")
		}
		return
	}

	st := c.Gate().State()
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken: sess.Token,
		ExpiresAt:   &sess.ExpiresAt,
		User:        sess.User,
		IsAdmin:     st.IsAdmin,
		Phase:       console.PhaseOf(st),
	})
}

// GetSession handles GET /api/v1/auth/session for an authenticated caller.
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetConsole(r.Context())
	if c == nil {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return
	}
	st, err := c.Gate().Await(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Session lookup did not finish")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(st))
}

// SignOut handles DELETE /api/v1/auth/session. It always succeeds once a
// token is presented; revocation problems are only logged.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
		return
	}
	h.sessions.SignOut(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

func stateResponse(st session.State) sessionResponse {
	return sessionResponse{
		User:    st.User,
		IsAdmin: st.IsAdmin,
		Phase:   console.PhaseOf(st),
	}
}
