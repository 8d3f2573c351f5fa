package message

import (
	"time"
)

type Message struct {
	ID             string     `json:"id"`
	ChannelID      string     `json:"channel_id"`
	UserID         *string    `json:"user_id,omitempty"`
	Content        string     `json:"content"`
	ThreadParentID *string    `json:"thread_parent_id,omitempty"`
	ReplyCount     int        `json:"reply_count"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (m Message) GetID() string { return m.ID }

// Deleted carries the identifier from a message-deleted event. The channel is
// not part of the payload.
type Deleted struct {
	ID string `json:"id"`
}

func (d Deleted) GetID() string { return d.ID }
