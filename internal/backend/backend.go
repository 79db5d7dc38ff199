// Package backend defines the service contracts the site is built against:
// per-table record access, binary object storage, and a change feed that
// pushes inserted records to subscribers. The store, objectstore, and
// realtime packages provide the implementations.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/foliodesk/folio/internal/model"
)

// Logical table names.
const (
	TableProjects = "projects"
	TableMessages = "contact_messages"
)

// ErrNotFound is returned when an update or delete matches no record.
var ErrNotFound = errors.New("not found")

// ProjectTable is the record API for the projects table.
type ProjectTable interface {
	Select(ctx context.Context, q Query) ([]model.Project, error)
	Insert(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id string) error
}

// MessageTable is the record API for the contact_messages table.
type MessageTable interface {
	Select(ctx context.Context, q Query) ([]model.ContactMessage, error)
	Insert(ctx context.Context, m *model.ContactMessage) error
	Update(ctx context.Context, id string, patch model.MessagePatch) error
	Delete(ctx context.Context, id string) error
}

// ---------------------------------------------------------------------------
// Object storage
// ---------------------------------------------------------------------------

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Bucket       string
	Path         string
	Size         int64
	LastModified time.Time
}

// Objects stores binary objects under a bucket and resolves their public URLs.
type Objects interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error
	PublicURL(bucket, path string) string
	Delete(ctx context.Context, bucket, path string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// ---------------------------------------------------------------------------
// Change feed
// ---------------------------------------------------------------------------

// EventKind names the kind of change an Event describes.
type EventKind string

// EventInsert is the only kind the store publishes.
const EventInsert EventKind = "INSERT"

// Event is a change notification for one record.
type Event struct {
	Table  string          `json:"table"`
	Kind   EventKind       `json:"kind"`
	Record json.RawMessage `json:"record"`
	At     time.Time       `json:"at"`
}

// NewEvent marshals record into an Event.
func NewEvent(table string, kind EventKind, record interface{}) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, err
	}
	return Event{Table: table, Kind: kind, Record: raw, At: time.Now().UTC()}, nil
}

// Decode unmarshals the event's record into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Record, v)
}

// Publisher sends change events to the feed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription is a handle on a registered callback. Unsubscribe is safe to
// call more than once; only the first call has an effect.
type Subscription interface {
	Unsubscribe()
}

// Feed delivers events for one table and kind to a callback, in publish order.
type Feed interface {
	Subscribe(table string, kind EventKind, fn func(Event)) (Subscription, error)
}
