package ingest

import (
	"context"
	"encoding/json"
	"time"

	"PPGateway/service/natsx"
	"PPGateway/tools/errs"
)

// NatsSource consumes the message subject registered under natsx.BizMessage.
type NatsSource struct {
	mgr   *natsx.NatsManager
	batch int
	wait  time.Duration
}

func NewNatsSource(mgr *natsx.NatsManager) *NatsSource {
	return &NatsSource{mgr: mgr, batch: 64, wait: 500 * time.Millisecond}
}

func (s *NatsSource) Name() string { return "nats" }

func (s *NatsSource) Run(ctx context.Context, d Deliverer) error {
	h := NatsHandler(d)
	r, ok := s.mgr.Route(natsx.BizMessage)
	if !ok {
		return errs.ErrArgs.WrapMsg("route not registered", "biz", natsx.BizMessage)
	}
	if r.Mode == natsx.JetStreamPull {
		return s.mgr.PullConsume(ctx, natsx.BizMessage, s.batch, s.wait, h)
	}
	if err := s.mgr.Subscribe(natsx.BizMessage, h); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// NatsHandler decodes one bus message and delivers it. Decode failures are
// returned so JetStream can nak them.
func NatsHandler(d Deliverer) natsx.NatsxHandler {
	return func(_ context.Context, m natsx.NatsxMessage) error {
		msg, err := DecodeMessage(m.Data)
		if err != nil {
			return err
		}
		deliver(d, "nats", msg)
		return nil
	}
}

// MessageIDKey is the idempotency key for message payloads: the _id of the
// raw record or of the envelope's inner record.
func MessageIDKey(m natsx.NatsxMessage) string {
	var probe struct {
		ID         string `json:"_id"`
		NewMessage *struct {
			ID string `json:"_id"`
		} `json:"newMessage"`
	}
	if err := json.Unmarshal(m.Data, &probe); err != nil {
		return ""
	}
	if probe.ID != "" {
		return probe.ID
	}
	if probe.NewMessage != nil {
		return probe.NewMessage.ID
	}
	return ""
}
