package kafka

import (
	"errors"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// topicDetail 期望的 topic 配置
func topicDetail(c Config) *sarama.TopicDetail {
	minISR := "1"
	if c.ReplicationFactor >= 3 {
		minISR = "2"
	}
	parts := c.Partitions
	if parts <= 0 {
		parts = 1
	}
	rf := c.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	return &sarama.TopicDetail{
		NumPartitions:     parts,
		ReplicationFactor: rf,
		ConfigEntries: map[string]*string{
			"cleanup.policy":                 strPtr("delete"),
			"min.insync.replicas":            strPtr(minISR),
			"unclean.leader.election.enable": strPtr("false"),
			"compression.type":               strPtr("producer"),
		},
	}
}

// EnsureTopics 会：
// 1) 不存在就按 c 创建；
// 2) 已存在且分区数 < 期望值时扩分区（Kafka 只能增加分区）。
func EnsureTopics(admin sarama.ClusterAdmin, c Config) error {
	td := topicDetail(c)
	for _, t := range c.Topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return errs.WrapMsg(err, "describe topic", "topic", t)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					logger.Info("[kafka] topic exists (race)", zap.String("topic", t))
					continue
				}
				return errs.WrapMsg(err, "create topic", "topic", t)
			}
			logger.Info("[kafka] topic created", zap.String("topic", t),
				zap.Int32("partitions", td.NumPartitions), zap.Int16("rf", td.ReplicationFactor))
			continue
		}

		curParts := int32(len(descs[0].Partitions))
		if td.NumPartitions > curParts {
			if err := admin.CreatePartitions(t, td.NumPartitions, nil, false); err != nil {
				return errs.WrapMsg(err, "expand partitions", "topic", t, "from", curParts, "to", td.NumPartitions)
			}
			logger.Info("[kafka] partitions expanded", zap.String("topic", t),
				zap.Int32("from", curParts), zap.Int32("to", td.NumPartitions))
			continue
		}
		logger.Debug("[kafka] topic exists", zap.String("topic", t), zap.Int32("partitions", curParts))
	}
	return nil
}

// EnsureTopicsWithBrokers opens a short-lived admin client for EnsureTopics.
func EnsureTopicsWithBrokers(c Config) error {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return err
	}
	admin, err := sarama.NewClusterAdmin(c.Brokers, cfg)
	if err != nil {
		return errs.WrapMsg(err, "kafka admin", "brokers", c.Brokers)
	}
	defer admin.Close()
	return EnsureTopics(admin, c)
}

func strPtr(s string) *string { return &s }
