package natsx

import (
	"context"

	"github.com/google/uuid"
)

// PublishOnce：带 Nats-Msg-Id 的发布（JetStream 服务端按此去重）
// - msgID 为空则自动生成
func (p *NatsxProducer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	out := make(map[string]string, len(hdr)+1)
	for k, v := range hdr {
		out[k] = v
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	out["Nats-Msg-Id"] = msgID
	return p.Publish(ctx, biz, data, out)
}
