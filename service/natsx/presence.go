package natsx

import (
	"context"
	"encoding/json"
	"time"

	"PPGateway/service/chat"
	"PPGateway/tools/errs"
)

// PresenceNotice is the snapshot announced on the presence subject.
type PresenceNotice struct {
	Node  string   `json:"node"`
	Users []string `json:"users"`
	TS    int64    `json:"ts"` // unix millis
}

// PresencePublisher announces every registry change on the bus so other
// services can follow who is online without polling.
type PresencePublisher struct {
	node string
	pub  Publisher
}

func NewPresencePublisher(node string, pub Publisher) *PresencePublisher {
	return &PresencePublisher{node: node, pub: pub}
}

func (p *PresencePublisher) OnPresence(ctx context.Context, c chat.PresenceChange) error {
	body, err := EncodePresence(p.node, c)
	if err != nil {
		return err
	}
	return p.pub.Publish(ctx, BizPresence, body, nil)
}

func EncodePresence(node string, c chat.PresenceChange) ([]byte, error) {
	users := c.Snapshot
	if users == nil {
		users = []string{}
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	b, err := json.Marshal(PresenceNotice{Node: node, Users: users, TS: at.UnixMilli()})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode presence notice")
	}
	return b, nil
}
