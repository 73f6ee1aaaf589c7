package chat

import (
	"encoding/json"
	"time"

	"PPGateway/tools/errs"
)

// EventKind is the event name seen by clients.
type EventKind string

const (
	EventNewMessage  EventKind = "newMessage"
	EventOnlineUsers EventKind = "getOnlineUsers"
)

// Message is a persisted chat message as handed over by the message-send
// collaborator. JSON names follow the stored document.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MarshalJSON leaves out timestamps the source never set.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID         string     `json:"_id"`
		SenderID   string     `json:"senderId"`
		ReceiverID string     `json:"receiverId"`
		Text       string     `json:"text"`
		Image      string     `json:"image,omitempty"`
		CreatedAt  *time.Time `json:"createdAt,omitempty"`
		UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	}
	return json.Marshal(wire{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		CreatedAt:  timeOrNil(m.CreatedAt),
		UpdatedAt:  timeOrNil(m.UpdatedAt),
	})
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (m *Message) Validate() error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return errs.ErrArgs.WrapMsg("message needs sender and receiver", "id", m.ID)
	}
	return nil
}

// OutboundEvent is a tagged payload pushed to one or many connections.
type OutboundEvent struct {
	Kind EventKind `json:"event"`
	Data any       `json:"data"`
}

type newMessagePayload struct {
	NewMessage Message `json:"newMessage"`
}

func NewMessageEvent(m Message) OutboundEvent {
	return OutboundEvent{Kind: EventNewMessage, Data: newMessagePayload{NewMessage: m}}
}

func OnlineUsersEvent(users []string) OutboundEvent {
	if users == nil {
		users = []string{}
	}
	return OutboundEvent{Kind: EventOnlineUsers, Data: users}
}

// Encode renders the wire frame {"event": ..., "data": ...}.
func (e OutboundEvent) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errs.WrapMsg(err, "encode event", "kind", e.Kind)
	}
	return b, nil
}
