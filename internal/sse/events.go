package sse

import (
	"github.com/enzyme/client/internal/channel"
	"github.com/enzyme/client/internal/invitation"
	"github.com/enzyme/client/internal/message"
)

// Wire tokens of the event-name line.
const (
	TypeMessageCreated    = "message-created"
	TypeMessageUpdated    = "message-updated"
	TypeMessageDeleted    = "message-deleted"
	TypeInvitationCreated = "invitation-created"
	TypeInvitationUpdated = "invitation-updated"
	TypeInvitationDeleted = "invitation-deleted"
	TypeChannelCreated    = "channel-created"
	TypeChannelUpdated    = "channel-updated"
	TypeChannelDeleted    = "channel-deleted"
	TypeKeepAlive         = "keep-alive"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindKeepAlive
	KindMessageCreated
	KindMessageUpdated
	KindMessageDeleted
	KindInvitationCreated
	KindInvitationUpdated
	KindInvitationDeleted
	KindChannelCreated
	KindChannelUpdated
	KindChannelDeleted
)

var kindByType = map[string]Kind{
	TypeKeepAlive:         KindKeepAlive,
	TypeMessageCreated:    KindMessageCreated,
	TypeMessageUpdated:    KindMessageUpdated,
	TypeMessageDeleted:    KindMessageDeleted,
	TypeInvitationCreated: KindInvitationCreated,
	TypeInvitationUpdated: KindInvitationUpdated,
	TypeInvitationDeleted: KindInvitationDeleted,
	TypeChannelCreated:    KindChannelCreated,
	TypeChannelUpdated:    KindChannelUpdated,
	TypeChannelDeleted:    KindChannelDeleted,
}

// ParseKind maps a wire token to its Kind, or KindUnknown.
func ParseKind(token string) Kind {
	return kindByType[token]
}

func (k Kind) String() string {
	for token, kind := range kindByType {
		if kind == k {
			return token
		}
	}
	return "unknown"
}

func (k Kind) IsMessage() bool {
	return k == KindMessageCreated || k == KindMessageUpdated || k == KindMessageDeleted
}

func (k Kind) IsChannel() bool {
	return k == KindChannelCreated || k == KindChannelUpdated || k == KindChannelDeleted
}

func (k Kind) IsInvitation() bool {
	return k == KindInvitationCreated || k == KindInvitationUpdated || k == KindInvitationDeleted
}

func (k Kind) IsDelete() bool {
	return k == KindMessageDeleted || k == KindChannelDeleted || k == KindInvitationDeleted
}

// Event is a decoded frame. Exactly one payload field is set, matching Kind:
// Message, Channel or Invitation for create/update, DeletedID for deletes,
// none for keep-alive.
type Event struct {
	ID         string
	Kind       Kind
	Message    *message.Message
	Channel    *channel.Channel
	Invitation *invitation.Invitation
	DeletedID  string
}

// ChannelID returns the channel a message event belongs to. Message deletes
// carry only the message id, so ok is false for them.
func (e Event) ChannelID() (id string, ok bool) {
	if e.Message == nil {
		return "", false
	}
	return e.Message.ChannelID, true
}

// EntityID returns the identifier of the entity the event is about.
func (e Event) EntityID() string {
	switch {
	case e.Message != nil:
		return e.Message.ID
	case e.Channel != nil:
		return e.Channel.ID
	case e.Invitation != nil:
		return e.Invitation.ID
	default:
		return e.DeletedID
	}
}
