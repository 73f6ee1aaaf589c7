// ppgw-push publishes "message persisted" events the way the message
// service does, for driving a gateway by hand. Settings come from env:
//
//	VIA=http|nats|kafka FROM=u1 TO=u2 MSG=hello COUNT=1 ENVELOPE=false
//	GATEWAY_URL INTERNAL_TOKEN                  (http)
//	NATS_SERVERS SUBJECT MODE                   (nats)
//	KAFKA_BROKERS TOPIC                         (kafka)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPGateway/logger"
	"PPGateway/middleware/security"
	"PPGateway/service/chat"
	"PPGateway/service/kafka"
	"PPGateway/service/natsx"
	"PPGateway/tools"
	"PPGateway/tools/errs"
	"PPGateway/tools/ids"

	"go.uber.org/zap"
)

func main() {
	defer logger.Sync()

	via := tools.GetEnv("VIA", "http")
	count := tools.GetEnvInt("COUNT", 1)
	envelope := tools.GetEnvBool("ENVELOPE", false)
	from, to := tools.GetEnv("FROM", "u1"), tools.GetEnv("TO", "u2")
	text := tools.GetEnv("MSG", "hello")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	send, closeFn, err := newSender(via)
	if err != nil {
		logger.Error("[push] init failed", zap.String("via", via), zap.Error(err))
		os.Exit(1)
	}
	defer closeFn()

	for i := 0; i < count && ctx.Err() == nil; i++ {
		msg := newMessage(from, to, text, time.Now())
		if err := send(ctx, msg, payload(msg, envelope)); err != nil {
			logger.Error("[push] send failed", zap.String("id", msg.ID), zap.Error(err))
			os.Exit(1)
		}
		logger.Info("[push] sent", zap.String("via", via), zap.String("id", msg.ID))
	}
}

type sendFunc func(ctx context.Context, msg chat.Message, body any) error

func newSender(via string) (sendFunc, func(), error) {
	switch via {
	case "http":
		url := tools.GetEnv("GATEWAY_URL", "http://127.0.0.1:8080") + "/internal/messages"
		return httpSender(&http.Client{Timeout: 5 * time.Second}, url, tools.GetEnv("INTERNAL_TOKEN", "")), func() {}, nil

	case "nats":
		mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
			Servers: tools.SplitList(tools.GetEnv("NATS_SERVERS", "nats://127.0.0.1:4222")),
			Name:    "ppgw-push",
		})
		if err != nil {
			return nil, nil, err
		}
		err = mgr.RegisterRoute(natsx.NatsxRoute{
			Biz:     natsx.BizMessage,
			Subject: tools.GetEnv("SUBJECT", "im.message.persisted"),
			Mode:    natsx.ParseMode(tools.GetEnv("MODE", "core")),
		})
		if err != nil {
			_ = mgr.Close()
			return nil, nil, err
		}
		return natsSender(mgr), func() { _ = mgr.Close() }, nil

	case "kafka":
		p, err := kafka.NewProducer(kafka.Config{
			Brokers:         tools.SplitList(tools.GetEnv("KAFKA_BROKERS", "127.0.0.1:9092")),
			ProducerRetries: 3,
		})
		if err != nil {
			return nil, nil, err
		}
		return kafkaSender(p, tools.GetEnv("TOPIC", "im.message.persisted")), func() { _ = p.Close() }, nil
	}
	return nil, nil, errs.ErrArgs.WrapMsg("unknown VIA", "via", via)
}

func newMessage(from, to, text string, now time.Time) chat.Message {
	return chat.Message{
		ID:         ids.GenerateString(),
		SenderID:   from,
		ReceiverID: to,
		Text:       text,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// payload is the raw record or the {"newMessage": ...} envelope; the
// gateway accepts both.
func payload(msg chat.Message, envelope bool) any {
	if envelope {
		return map[string]any{"newMessage": msg}
	}
	return msg
}

func httpSender(c *http.Client, url, token string) sendFunc {
	return func(ctx context.Context, _ chat.Message, body any) error {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.WrapMsg(err, "encode")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return errs.WrapMsg(err, "build request", "url", url)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(security.HeaderInternalToken, token)
		}
		resp, err := c.Do(req)
		if err != nil {
			return errs.WrapMsg(err, "post", "url", url)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return errs.ErrInternalServer.WrapMsg("unexpected status", "status", resp.StatusCode)
		}
		return nil
	}
}

// natsSender uses the message id as Nats-Msg-Id so JetStream and the
// gateway's idempotency middleware both drop retries.
func natsSender(p interface {
	PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error
}) sendFunc {
	return func(ctx context.Context, msg chat.Message, body any) error {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.WrapMsg(err, "encode")
		}
		return p.PublishOnce(ctx, natsx.BizMessage, b, nil, msg.ID)
	}
}

// kafkaSender keys records by receiver so one conversation side stays on
// one partition.
func kafkaSender(p *kafka.Producer, topic string) sendFunc {
	return func(_ context.Context, msg chat.Message, body any) error {
		return p.SendJSON(topic, msg.ReceiverID, body)
	}
}
