package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Project is one portfolio entry. Projects are created and deleted, never
// edited in place.
type Project struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Tags        Tags      `json:"tags" db:"tags"`
	ImageURL    *string   `json:"image_url" db:"image_url"`
	LiveURL     *string   `json:"live_url" db:"live_url"`
	GithubURL   *string   `json:"github_url" db:"github_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Tags is an ordered list of short labels. It is persisted as a JSON array
// in a text column so every supported dialect can hold it.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*t = Tags{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*t = out
	return nil
}

// MarshalJSON renders a nil list as [] rather than null.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}
