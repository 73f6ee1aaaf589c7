package kafka

import (
	"context"
	"errors"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type ConsumerGroupHandler struct {
	handlers *HandlerMap
}

func (h *ConsumerGroupHandler) Setup(s sarama.ConsumerGroupSession) error {
	logger.Info("[kafka] consumer group setup", zap.String("member", s.MemberID()), zap.Int32("generation", s.GenerationID()))
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(s sarama.ConsumerGroupSession) error {
	logger.Info("[kafka] consumer group cleanup", zap.String("member", s.MemberID()))
	return nil
}

// ConsumeClaim hands each record to its topic handler. Offsets are marked
// after handling whatever the outcome, since delivery is best-effort.
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(ctx, msg)
			session.MarkMessage(msg, "")
		}
	}
}

func (h *ConsumerGroupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	defer safe.Recover("kafka-handler")
	handler, err := h.handlers.Get(msg.Topic)
	if err != nil {
		logger.Warn("[kafka] no handler", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	if err := handler(ctx, msg.Topic, msg.Key, msg.Value); err != nil {
		logger.Warn("[kafka] handler error",
			zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}

// ConsumerGroup joins GroupID and consumes Topics until Run's ctx ends.
type ConsumerGroup struct {
	conf  Config
	group sarama.ConsumerGroup
	h     *ConsumerGroupHandler
}

func NewConsumerGroup(c Config, handlers *HandlerMap) (*ConsumerGroup, error) {
	if len(c.Brokers) == 0 || c.GroupID == "" || len(c.Topics) == 0 {
		return nil, errs.ErrArgs.WrapMsg("kafka consumer needs brokers, group and topics")
	}
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka consumer group", "group", c.GroupID)
	}
	return &ConsumerGroup{conf: c, group: group, h: &ConsumerGroupHandler{handlers: handlers}}, nil
}

func (g *ConsumerGroup) Run(ctx context.Context) error {
	safe.SafeGo("kafka-group-errors", func() {
		for err := range g.group.Errors() {
			logger.Warn("[kafka] consumer group error", zap.String("group", g.conf.GroupID), zap.Error(err))
		}
	})

	for {
		// Consume 在每次 rebalance 后返回，需要循环
		if err := g.group.Consume(ctx, g.conf.Topics, g.h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Warn("[kafka] consume error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (g *ConsumerGroup) Close() error {
	return g.group.Close()
}
