package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foliodesk/folio/internal/model"
)

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new account. ID and CreatedAt are assigned here.
// Returns ErrConflict if the email is taken.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	u.ID = uuid.Must(uuid.NewV7()).String()
	u.CreatedAt = s.now()

	const q = `INSERT INTO users (id, email, password_hash, verified, verification_token, created_at)
		VALUES (:id, :email, :password_hash, :verified, :verification_token, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, u); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "SELECT * FROM users WHERE id = ?", id)
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "SELECT * FROM users WHERE email = ?", email)
}

func (s *Store) getUser(ctx context.Context, q string, arg interface{}) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind(q), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all accounts ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// VerifyUser marks the account holding token as verified and clears the
// token. Returns ErrNotFound for an unknown token.
func (s *Store) VerifyUser(ctx context.Context, token string) (*model.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var u model.User
	if err := tx.GetContext(ctx, &u, tx.Rebind("SELECT * FROM users WHERE verification_token = ?"), token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find verification token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE users SET verified = ?, verification_token = NULL WHERE id = ?"), true, u.ID); err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	u.Verified = true
	u.VerificationToken = nil
	return &u, nil
}

// SetUserVerified forces the verified flag, used when an operator creates an
// account from the command line.
func (s *Store) SetUserVerified(ctx context.Context, id string, verified bool) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET verified = ?, verification_token = NULL WHERE id = ?"), verified, id)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set verified rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// GrantRole gives a user a role. Granting a held role is a no-op.
func (s *Store) GrantRole(ctx context.Context, userID, role string) error {
	has, err := s.HasRole(ctx, userID, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO user_roles (user_id, role, created_at) VALUES (?, ?, ?)"),
		userID, role, s.now()); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from a user. Returns ErrNotFound if the user did
// not hold it.
func (s *Store) RevokeRole(ctx context.Context, userID, role string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM user_roles WHERE user_id = ? AND role = ?"), userID, role)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke role rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasRole reports whether the user holds role.
func (s *Store) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		s.db.Rebind("SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?"), userID, role); err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return n > 0, nil
}

// UserRoles lists the roles a user holds.
func (s *Store) UserRoles(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	if err := s.db.SelectContext(ctx, &roles,
		s.db.Rebind("SELECT role FROM user_roles WHERE user_id = ? ORDER BY role"), userID); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// CreateSession persists a session. The caller sets ID, UserID and ExpiresAt.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	const q = `INSERT INTO sessions (id, user_id, created_at, expires_at, revoked_at)
		VALUES (:id, :user_id, :created_at, :expires_at, :revoked_at)`
	if _, err := s.db.NamedExecContext(ctx, q, sess); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.GetContext(ctx, &sess, s.db.Rebind("SELECT * FROM sessions WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// RevokeSession marks a session revoked. Revoking twice is not an error.
func (s *Store) RevokeSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL"), s.now(), id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke session rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// PurgeSessions deletes sessions that expired before cutoff and returns how
// many were removed.
func (s *Store) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE expires_at < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return result.RowsAffected()
}
