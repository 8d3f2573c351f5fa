package channel

import (
	"time"
)

const (
	TypePublic  = "public"
	TypePrivate = "private"
	TypeDM      = "dm"
)

type Channel struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Type        string     `json:"type"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	UnreadCount int        `json:"unread_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (c Channel) GetID() string { return c.ID }

func (c Channel) IsArchived() bool { return c.ArchivedAt != nil }
