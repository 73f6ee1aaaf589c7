package natsx

import (
	"context"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 按 Biz 路由发送
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return errs.ErrArgs.WrapMsg("route not found", "biz", biz)
	}
	msg := newMsg(r.Subject, data, hdr)
	switch r.Mode {
	case Core:
		if err := p.c.nc.PublishMsg(msg); err != nil {
			return errs.WrapMsg(err, "nats publish", "subject", r.Subject)
		}
		return nil
	case JetStreamPush, JetStreamPull:
		js := p.c.jetStream()
		if js == nil {
			return errs.ErrNotInitialized.WrapMsg("jetstream not initialized")
		}
		ack, err := js.PublishMsg(msg, nats.Context(ctx))
		if err != nil {
			return errs.WrapMsg(err, "jetstream publish", "subject", r.Subject)
		}
		logger.Debug("[natsx] published", zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence))
		return nil
	default:
		return errs.ErrArgs.WrapMsg("unsupported mode", "biz", biz, "mode", r.Mode)
	}
}

// 用 NewMsg 构造，header 为空时也安全
func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	return msg
}
