package kafka

import (
	"encoding/json"

	"PPGateway/tools/errs"

	"github.com/Shopify/sarama"
)

// Producer 同步生产者，Key 决定分区
type Producer struct {
	p sarama.SyncProducer
}

func NewProducer(c Config) (*Producer, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer", "brokers", c.Brokers)
	}
	return &Producer{p: p}, nil
}

// NewProducerWith wraps an existing SyncProducer.
func NewProducerWith(p sarama.SyncProducer) *Producer { return &Producer{p: p} }

func (p *Producer) SendSync(topic string, key, value []byte) (partition int32, offset int64, err error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	partition, offset, err = p.p.SendMessage(msg)
	if err != nil {
		return 0, 0, errs.WrapMsg(err, "kafka send", "topic", topic)
	}
	return partition, offset, nil
}

// SendJSON marshals v and sends it keyed by key.
func (p *Producer) SendJSON(topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errs.WrapMsg(err, "kafka encode", "topic", topic)
	}
	_, _, err = p.SendSync(topic, []byte(key), b)
	return err
}

func (p *Producer) Close() error { return p.p.Close() }
