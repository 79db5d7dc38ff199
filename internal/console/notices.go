package console

import (
	"time"

	"github.com/foliodesk/folio/internal/model"
)

// NoticeKind is the tone of a notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

// Notice is a transient message for the operator.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	At          time.Time  `json:"at"`
}

// Notice titles.
const (
	TitleProjectAdded    = "Project added successfully!"
	TitleProjectDeleted  = "Project deleted!"
	TitleMessageDeleted  = "Message deleted!"
	TitleNewMessage      = "New message received!"
	TitleAddFailed       = "Error adding project"
	TitleUploadFailed    = "Error uploading image"
	TitleDeleteFailed    = "Error deleting project"
	TitleFetchProjects   = "Error fetching projects"
	TitleFetchMessages   = "Error fetching messages"
	TitleMarkReadFailed  = "Error updating message"
	TitleMsgDeleteFailed = "Error deleting message"
)

// UpdateType tells Watch consumers what changed.
type UpdateType string

const (
	UpdateMessage  UpdateType = "message"
	UpdateMessages UpdateType = "messages"
	UpdateProjects UpdateType = "projects"
	UpdateNotice   UpdateType = "notice"
)

// Update is sent to Watch channels. Message is set for UpdateMessage and
// Notice for UpdateNotice. Unread is the counter after the change.
type Update struct {
	Type    UpdateType            `json:"type"`
	Message *model.ContactMessage `json:"message,omitempty"`
	Notice  *Notice               `json:"notice,omitempty"`
	Unread  int                   `json:"unread"`
}

// Watch returns a channel of updates and a func that stops them. The
// channel is closed by cancel or by Close. Slow readers miss updates rather
// than stall the console; Snapshot always has the full state.
func (c *Console) Watch() (<-chan Update, func()) {
	ch := make(chan Update, watchBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextW
	c.nextW++
	c.watchers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		w, ok := c.watchers[id]
		delete(c.watchers, id)
		c.mu.Unlock()
		if ok {
			close(w)
		}
	}
}

// notify records a notice and broadcasts it.
func (c *Console) notify(kind NoticeKind, title, description string) {
	n := Notice{Kind: kind, Title: title, Description: description, At: time.Now().UTC()}
	c.mu.Lock()
	c.addNoticeLocked(n)
	unread := c.unread
	c.mu.Unlock()
	c.broadcast(Update{Type: UpdateNotice, Notice: &n, Unread: unread})
}

func (c *Console) addNoticeLocked(n Notice) {
	c.notices = append(c.notices, n)
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
}

// broadcast delivers u to every watcher without blocking.
func (c *Console) broadcast(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(u)
}

func (c *Console) broadcastLocked(u Update) {
	for id, ch := range c.watchers {
		select {
		case ch <- u:
		default:
			c.logger.Debug("console watcher lagging, update dropped", "watcher", id, "type", u.Type)
		}
	}
}
