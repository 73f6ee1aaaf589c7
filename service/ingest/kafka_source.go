package ingest

import (
	"context"

	"PPGateway/logger"
	"PPGateway/service/kafka"

	"go.uber.org/zap"
)

// KafkaSource joins a consumer group on the configured topics.
type KafkaSource struct {
	conf kafka.Config
}

func NewKafkaSource(conf kafka.Config) *KafkaSource {
	return &KafkaSource{conf: conf}
}

func (s *KafkaSource) Name() string { return "kafka" }

func (s *KafkaSource) Run(ctx context.Context, d Deliverer) error {
	if s.conf.AutoCreateTopics {
		if err := kafka.EnsureTopicsWithBrokers(s.conf); err != nil {
			logger.Warn("[ingest] kafka ensure topics", zap.Error(err))
		}
	}
	handlers := kafka.NewHandlerMap()
	handlers.RegisterAll(s.conf.Topics, KafkaHandler(d))

	group, err := kafka.NewConsumerGroup(s.conf, handlers)
	if err != nil {
		return err
	}
	defer func() {
		if err := group.Close(); err != nil {
			logger.Warn("[ingest] kafka close", zap.Error(err))
		}
	}()
	return group.Run(ctx)
}

func KafkaHandler(d Deliverer) kafka.MessageHandler {
	return func(_ context.Context, topic string, _, value []byte) error {
		msg, err := DecodeMessage(value)
		if err != nil {
			return err
		}
		deliver(d, "kafka:"+topic, msg)
		return nil
	}
}
