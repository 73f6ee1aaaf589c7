package storage

import (
	"strings"
)

// Pub/Sub 事件类型，payload 格式：<TYPE>:<user>:<conn>
const (
	EventOnline  = "ONLINE"
	EventOffline = "OFFLINE"
)

// PresenceEvent is one message on the presence channel.
type PresenceEvent struct {
	Type   string
	UserID string
	ConnID string
}

func FormatEvent(typ, userID, connID string) string {
	return typ + ":" + userID + ":" + connID
}

// ParseEvent reverses FormatEvent. The connection id is the last field so
// user ids containing ':' survive.
func ParseEvent(payload string) (PresenceEvent, bool) {
	typ, rest, ok := strings.Cut(payload, ":")
	if !ok || (typ != EventOnline && typ != EventOffline) {
		return PresenceEvent{}, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return PresenceEvent{}, false
	}
	return PresenceEvent{Type: typ, UserID: rest[:i], ConnID: rest[i+1:]}, true
}
