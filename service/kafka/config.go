package kafka

import (
	"strings"
	"time"

	"PPGateway/tools/errs"

	"github.com/Shopify/sarama"
)

type Config struct {
	Brokers             []string
	GroupID             string
	Topics              []string
	Version             string // 例如 "2.1.0"，空=sarama 默认
	InitialOffset       string // newest/oldest
	AutoCreateTopics    bool
	Partitions          int32 // 单机=8
	ReplicationFactor   int16 // 单机=1；生产=3
	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
}

// BuildBaseConfig 生产/消费共用的 sarama 配置
func BuildBaseConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "ppgateway"
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.ErrArgs.WrapMsg("bad kafka version", "version", c.Version)
		}
		cfg.Version = v
	} else {
		cfg.Version = sarama.V2_1_0_0
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.ProducerRetries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 控制分区
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(c.InitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, errs.WrapMsg(err, "kafka config")
	}
	return cfg, nil
}
