package invitation

import (
	"time"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

type Invitation struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	ChannelID    *string    `json:"channel_id,omitempty"`
	InviterID    string     `json:"inviter_id"`
	InvitedEmail *string    `json:"invited_email,omitempty"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (i Invitation) GetID() string { return i.ID }

// Expired reports whether the invitation has a deadline that passed before now.
func (i Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
