package console

import (
	"context"
	"fmt"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
)

// Messages returns the inbox newest first and the unread count.
func (c *Console) Messages() ([]model.ContactMessage, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ContactMessage{}, c.messages...), c.unread
}

// Unread returns the unread counter.
func (c *Console) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// ReloadMessages re-reads the inbox from the store and recomputes the
// unread counter.
func (c *Console) ReloadMessages(ctx context.Context) ([]model.ContactMessage, error) {
	if err := c.requireAdmin(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()

	msgs, err := c.fetchMessages(ctx)

	c.mu.Lock()
	c.settleLoadLocked(msgs, err)
	out := append([]model.ContactMessage{}, c.messages...)
	unread := c.unread
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.broadcast(Update{Type: UpdateMessages, Unread: unread})
	return out, nil
}

// settleLoadLocked installs the result of an inbox read and, once no other
// read is in flight, merges the pushes held back while reading.
func (c *Console) settleLoadLocked(msgs []model.ContactMessage, err error) {
	if err == nil {
		c.messages = msgs
		c.unread = countUnread(msgs)
	}
	c.loads--
	if c.loads > 0 {
		return
	}
	pending := c.pending
	c.pending = nil
	for _, m := range pending {
		c.applyPushLocked(m)
	}
}

// MarkRead sets the read flag in the store, then mirrors it locally. The
// counter only drops if the message was unread.
func (c *Console) MarkRead(ctx context.Context, id string) error {
	if err := c.requireAdmin(); err != nil {
		return err
	}
	sctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.deps.Messages.Update(sctx, id, model.MessagePatch{MarkRead: true}); err != nil {
		c.notify(NoticeError, TitleMarkReadFailed, err.Error())
		return fmt.Errorf("mark message read: %w", err)
	}

	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			if !c.messages[i].IsRead {
				c.messages[i].IsRead = true
				c.decrementLocked()
			}
			break
		}
	}
	unread := c.unread
	c.broadcastLocked(Update{Type: UpdateMessages, Unread: unread})
	c.mu.Unlock()
	return nil
}

// DeleteMessage removes a message from the store, then from the inbox.
func (c *Console) DeleteMessage(ctx context.Context, id string) error {
	if err := c.requireAdmin(); err != nil {
		return err
	}
	sctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.deps.Messages.Delete(sctx, id); err != nil {
		c.notify(NoticeError, TitleMsgDeleteFailed, err.Error())
		return fmt.Errorf("delete message: %w", err)
	}

	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			if !c.messages[i].IsRead {
				c.decrementLocked()
			}
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.notify(NoticeSuccess, TitleMessageDeleted, "")
	return nil
}

// onInsert receives realtime events. While an inbox read is in flight
// pushes are held and merged once it settles.
func (c *Console) onInsert(ev backend.Event) {
	var m model.ContactMessage
	if err := ev.Decode(&m); err != nil {
		c.logger.Warn("drop undecodable message event", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.loads > 0 {
		c.pending = append(c.pending, m)
		return
	}
	c.applyPushLocked(m)
}

// applyPushLocked prepends a pushed message, bumps the counter and raises a
// notice. Messages already in the inbox are ignored.
func (c *Console) applyPushLocked(m model.ContactMessage) {
	for _, existing := range c.messages {
		if existing.ID == m.ID {
			return
		}
	}
	c.messages = append([]model.ContactMessage{m}, c.messages...)
	if !m.IsRead {
		c.unread++
	}

	n := Notice{Kind: NoticeInfo, Title: TitleNewMessage, Description: "From: " + m.Name, At: m.CreatedAt}
	c.addNoticeLocked(n)
	msg := m
	c.broadcastLocked(Update{Type: UpdateMessage, Message: &msg, Unread: c.unread})
	c.broadcastLocked(Update{Type: UpdateNotice, Notice: &n, Unread: c.unread})
}

func (c *Console) decrementLocked() {
	if c.unread > 0 {
		c.unread--
	}
}

func (c *Console) fetchMessages(ctx context.Context) ([]model.ContactMessage, error) {
	sctx, cancel := c.withTimeout(ctx)
	defer cancel()
	msgs, err := c.deps.Messages.Select(sctx, backend.NewestFirst())
	if err != nil {
		c.logger.Error("fetch messages failed", "error", err)
		c.notify(NoticeError, TitleFetchMessages, err.Error())
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return msgs, nil
}

func countUnread(msgs []model.ContactMessage) int {
	n := 0
	for _, m := range msgs {
		if !m.IsRead {
			n++
		}
	}
	return n
}
