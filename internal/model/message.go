package model

import "time"

// ContactMessage is one inbound visitor inquiry. IsRead starts false and is
// only ever set to true.
type ContactMessage struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Message   string    `json:"message" db:"message"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MessagePatch lists the fields an operator may change on a message.
// There is deliberately no way to express "mark unread".
type MessagePatch struct {
	MarkRead bool `json:"is_read"`
}

// Empty reports whether the patch changes nothing.
func (p MessagePatch) Empty() bool {
	return !p.MarkRead
}
