package natsx

import (
	"context"
	"errors"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxConsumer 消费端
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

func toMessage(m *nats.Msg) NatsxMessage {
	return NatsxMessage{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

// Subscribe Core / JetStream Push 订阅（JS 会自动 ACK/NACK）
func (cs *NatsxConsumer) Subscribe(biz string, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return errs.ErrArgs.WrapMsg("route not found", "biz", biz)
	}
	h = NatsxChain(h, cs.mws...)

	switch r.Mode {
	case Core:
		var (
			sub *nats.Subscription
			err error
		)
		cb := func(m *nats.Msg) {
			_ = h(context.Background(), toMessage(m))
		}
		if r.Queue == "" {
			sub, err = cs.c.nc.Subscribe(r.Subject, cb)
		} else {
			sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
		}
		if err != nil {
			return errs.WrapMsg(err, "nats subscribe", "subject", r.Subject)
		}
		_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
		cs.c.track(biz, sub)
		return nil

	case JetStreamPush:
		js := cs.c.jetStream()
		if js == nil {
			return errs.ErrNotInitialized.WrapMsg("jetstream not initialized")
		}
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(r.AckWait),
			nats.MaxAckPending(r.MaxAckPending),
		}
		if r.Durable != "" {
			opts = append(opts, nats.Durable(r.Durable))
		}

		cb := func(m *nats.Msg) {
			if err := h(context.Background(), toMessage(m)); err == nil {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}

		var (
			sub *nats.Subscription
			err error
		)
		if r.Queue == "" {
			sub, err = js.Subscribe(r.Subject, cb, opts...)
		} else {
			sub, err = js.QueueSubscribe(r.Subject, r.Queue, cb, opts...)
		}
		if err != nil {
			return errs.WrapMsg(err, "jetstream subscribe", "subject", r.Subject)
		}
		cs.c.track(biz, sub)
		return nil

	default:
		return errs.ErrArgs.WrapMsg("mode not supported in Subscribe", "biz", biz, "mode", r.Mode)
	}
}

// PullConsume JetStream Pull 拉取消费（批量），阻塞直到 ctx 结束
func (cs *NatsxConsumer) PullConsume(ctx context.Context, biz string, batch int, wait time.Duration, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return errs.ErrArgs.WrapMsg("route not found", "biz", biz)
	}
	if r.Mode != JetStreamPull {
		return errs.ErrArgs.WrapMsg("route is not JetStreamPull", "biz", biz)
	}
	js := cs.c.jetStream()
	if js == nil {
		return errs.ErrNotInitialized.WrapMsg("jetstream not initialized")
	}
	if r.Durable == "" {
		return errs.ErrArgs.WrapMsg("JetStreamPull requires Durable consumer name", "biz", biz)
	}

	sub, err := js.PullSubscribe(r.Subject, r.Durable, nats.PullMaxWaiting(8))
	if err != nil {
		return errs.WrapMsg(err, "jetstream pull subscribe", "subject", r.Subject)
	}
	cs.c.track(biz, sub)
	h = NatsxChain(h, cs.mws...)
	if batch <= 0 {
		batch = 64
	}
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if errors.Is(err, nats.ErrTimeout) {
			continue
		}
		if err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil
			}
			logger.Warn("[natsx] fetch failed", zap.String("biz", biz), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		for _, m := range msgs {
			if err := h(ctx, toMessage(m)); err == nil {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
