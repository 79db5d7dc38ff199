// Package auth manages operator accounts: registration with email
// verification, password sign-in, and revocable sessions carried by signed
// JWTs.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
	"github.com/foliodesk/folio/internal/store"
)

const (
	minPasswordLength = 6
	defaultSessionTTL = 7 * 24 * time.Hour
	issuer            = "folio"
)

// Accounts is the persistence the service needs. *store.Store implements it.
type Accounts interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	VerifyUser(ctx context.Context, token string) (*model.User, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	RevokeSession(ctx context.Context, id string) error
}

// Identity is what a valid token resolves to.
type Identity struct {
	UserID    string
	SessionID string
	Email     string
	ExpiresAt time.Time
}

// Session is the result of a successful sign-in.
type Session struct {
	ID        string      `json:"-"`
	Token     string      `json:"access_token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Options configures a Service. Secret is required.
type Options struct {
	Secret     string
	SessionTTL time.Duration
	Hasher     PasswordHasher
	Mailer     Mailer
	Logger     *slog.Logger
}

// Service implements sign-up, sign-in and session resolution.
type Service struct {
	accounts Accounts
	secret   []byte
	ttl      time.Duration
	hasher   PasswordHasher
	mailer   Mailer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds a Service over accounts.
func NewService(accounts Accounts, opts Options) (*Service, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	s := &Service{
		accounts: accounts,
		secret:   []byte(opts.Secret),
		ttl:      opts.SessionTTL,
		hasher:   opts.Hasher,
		mailer:   opts.Mailer,
		logger:   opts.Logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.ttl <= 0 {
		s.ttl = defaultSessionTTL
	}
	if s.hasher == nil {
		s.hasher = NewArgon2Hasher(DefaultArgon2Params())
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.mailer == nil {
		s.mailer = LogMailer{Logger: s.logger}
	}
	return s, nil
}

// SignUp registers an unverified account and sends its verification link.
// It never creates a session.
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email,max=255"); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	tokenHash := hashToken(token)

	u := &model.User{
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: &tokenHash,
	}
	if err := s.accounts.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.mailer.SendVerification(ctx, email, token); err != nil {
		s.logger.Error("send verification failed", "email", email, "error", err)
	}
	s.logger.Info("user registered", "user_id", u.ID, "email", email)
	return u, nil
}

// Verify confirms the account that was sent token.
func (s *Service) Verify(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.accounts.VerifyUser(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	s.logger.Info("user verified", "user_id", u.ID)
	return u, nil
}

// SignIn checks credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.accounts.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.Verified {
		return nil, ErrEmailNotConfirmed
	}

	now := s.now()
	sess := &model.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.accounts.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.issue(u, sess)
	if err != nil {
		return nil, err
	}
	s.logger.Info("signed in", "user_id", u.ID, "session_id", sess.ID)
	return &Session{ID: sess.ID, Token: token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

// Resolve validates a token and its session row.
func (s *Service) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.parse(token, true)
	if err != nil {
		return nil, err
	}
	sess, err := s.accounts.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	if !sess.Active(s.now()) {
		return nil, ErrSessionExpired
	}
	return &Identity{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Email:     claims.Email,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// SignOut revokes the session behind token. Expired tokens can still be
// signed out.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token, false)
	if err != nil {
		return err
	}
	if err := s.accounts.RevokeSession(ctx, claims.ID); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logger.Info("signed out", "user_id", claims.Subject, "session_id", claims.ID)
	return nil
}

// User returns the account for id.
func (s *Service) User(ctx context.Context, id string) (*model.User, error) {
	return s.accounts.GetUser(ctx, id)
}

// IsAdmin reports whether the user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return s.accounts.HasRole(ctx, userID, model.RoleAdmin)
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Service) issue(u *model.User, sess *model.Session) (string, error) {
	c := claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(token string, checkExpiry bool) (*claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidToken
	}
	if c.ID == "" || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
