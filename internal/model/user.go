package model

import "time"

// RoleAdmin is the only role the application checks for.
const RoleAdmin = "admin"

// User is an account that can sign in. Passwords are stored as Argon2id
// hashes in PHC string form.
type User struct {
	ID                string    `json:"id" db:"id"`
	Email             string    `json:"email" db:"email"`
	PasswordHash      string    `json:"-" db:"password_hash"`
	Verified          bool      `json:"verified" db:"verified"`
	VerificationToken *string   `json:"-" db:"verification_token"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Session is a persisted sign-in. Its ID is carried as the token's jti so a
// sign-out can revoke the token before it expires.
type Session struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
