package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/enzyme/client/internal/channel"
	"github.com/enzyme/client/internal/invitation"
	"github.com/enzyme/client/internal/message"
)

var (
	ErrUnknownType    = errors.New("unknown event type")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// DecodeError reports a frame that was read intact but could not be turned
// into an Event. It wraps ErrUnknownType or ErrInvalidPayload.
type DecodeError struct {
	FrameID string
	Type    string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding frame %s (%s): %v", e.FrameID, e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type decodeFunc func(data string, ev *Event) error

var decoders = map[Kind]decodeFunc{
	KindKeepAlive:         func(string, *Event) error { return nil },
	KindMessageCreated:    decodeMessage,
	KindMessageUpdated:    decodeMessage,
	KindMessageDeleted:    decodeDeletedID,
	KindInvitationCreated: decodeInvitation,
	KindInvitationUpdated: decodeInvitation,
	KindInvitationDeleted: decodeDeletedID,
	KindChannelCreated:    decodeChannel,
	KindChannelUpdated:    decodeChannel,
	KindChannelDeleted:    decodeDeletedID,
}

// Decode turns a frame into an Event. It has no side effects.
func Decode(f Frame) (Event, error) {
	kind := ParseKind(f.Type)
	decode, ok := decoders[kind]
	if !ok {
		return Event{}, &DecodeError{FrameID: f.ID, Type: f.Type, Err: ErrUnknownType}
	}

	ev := Event{ID: f.ID, Kind: kind}
	if err := decode(f.Data, &ev); err != nil {
		return Event{}, &DecodeError{FrameID: f.ID, Type: f.Type, Err: fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}
	return ev, nil
}

func decodeMessage(data string, ev *Event) error {
	var m message.Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return err
	}
	if m.ID == "" {
		return errors.New("message without id")
	}
	ev.Message = &m
	return nil
}

func decodeChannel(data string, ev *Event) error {
	var c channel.Channel
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return err
	}
	if c.ID == "" {
		return errors.New("channel without id")
	}
	ev.Channel = &c
	return nil
}

func decodeInvitation(data string, ev *Event) error {
	var inv invitation.Invitation
	if err := json.Unmarshal([]byte(data), &inv); err != nil {
		return err
	}
	if inv.ID == "" {
		return errors.New("invitation without id")
	}
	ev.Invitation = &inv
	return nil
}

// decodeDeletedID accepts a JSON string, an {"id": ...} object, or an
// unquoted identifier.
func decodeDeletedID(data string, ev *Event) error {
	data = strings.TrimSpace(data)
	var id string
	switch {
	case strings.HasPrefix(data, `"`):
		if err := json.Unmarshal([]byte(data), &id); err != nil {
			return err
		}
	case strings.HasPrefix(data, "{"):
		var d message.Deleted
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return err
		}
		id = d.ID
	default:
		id = data
	}
	if id == "" {
		return errors.New("empty identifier")
	}
	ev.DeletedID = id
	return nil
}
