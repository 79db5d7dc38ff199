package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
)

var messageColumns = map[string]bool{
	"id": true, "name": true, "email": true, "message": true,
	"is_read": true, "created_at": true,
}

// MessageTable implements backend.MessageTable. Inserts are published to the
// store's change feed.
type MessageTable struct {
	s *Store
}

var _ backend.MessageTable = (*MessageTable)(nil)

// Select returns messages matching q, newest first unless q orders otherwise.
func (t *MessageTable) Select(ctx context.Context, q backend.Query) ([]model.ContactMessage, error) {
	sqlText, args, err := t.s.buildSelect("contact_messages", messageColumns, q, backend.NewestFirst().Order)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	var rows []model.ContactMessage
	if err := t.s.db.SelectContext(ctx, &rows, sqlText, args...); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return rows, nil
}

// Insert writes a new unread message and publishes an INSERT event. A publish
// failure is logged; the row is already committed.
func (t *MessageTable) Insert(ctx context.Context, m *model.ContactMessage) error {
	m.ID = uuid.Must(uuid.NewV7()).String()
	m.CreatedAt = t.s.now()
	m.IsRead = false

	const q = `INSERT INTO contact_messages (id, name, email, message, is_read, created_at)
		VALUES (:id, :name, :email, :message, :is_read, :created_at)`

	if _, err := t.s.db.NamedExecContext(ctx, q, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if t.s.pub != nil {
		ev, err := backend.NewEvent(backend.TableMessages, backend.EventInsert, m)
		if err == nil {
			err = t.s.pub.Publish(ctx, ev)
		}
		if err != nil {
			t.s.logger.Warn("publish message insert", "id", m.ID, "error", err)
		}
	}
	return nil
}

// Update applies patch to one message. Only marking read is supported.
func (t *MessageTable) Update(ctx context.Context, id string, patch model.MessagePatch) error {
	if patch.Empty() {
		return fmt.Errorf("update message: empty patch")
	}
	result, err := t.s.db.ExecContext(ctx,
		t.s.db.Rebind("UPDATE contact_messages SET is_read = ? WHERE id = ?"), true, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes exactly one message by ID.
func (t *MessageTable) Delete(ctx context.Context, id string) error {
	result, err := t.s.db.ExecContext(ctx, t.s.db.Rebind("DELETE FROM contact_messages WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnread returns the number of messages with is_read = false.
func (t *MessageTable) CountUnread(ctx context.Context) (int, error) {
	var n int
	if err := t.s.db.GetContext(ctx, &n,
		t.s.db.Rebind("SELECT COUNT(*) FROM contact_messages WHERE is_read = ?"), false); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
