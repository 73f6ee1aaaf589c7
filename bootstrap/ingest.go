package bootstrap

import (
	"context"

	"PPGateway/data/database/mgo/mongoutil"
	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/service/chat"
	"PPGateway/service/ingest"
	"PPGateway/service/kafka"
	"PPGateway/service/mgo"
	"PPGateway/service/natsx"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// IngestModule runs every enabled "message persisted" source.
var IngestModule = fx.Module("ingest",
	fx.Provide(newIngestRunner),
	fx.Invoke(runIngest),
)

type ingestIn struct {
	fx.In

	Cfg     *config.AppConfig
	Gateway *chat.Gateway
	Nats    *natsx.NatsManager `optional:"true"`
}

func newIngestRunner(in ingestIn) (*ingest.Runner, error) {
	r := ingest.NewRunner(in.Gateway)
	if in.Nats != nil {
		r.Add(ingest.NewNatsSource(in.Nats))
	}

	cfg := in.Cfg
	if cfg.Kafka.Enabled {
		r.Add(ingest.NewKafkaSource(kafkaConf(cfg.Kafka)))
	}
	if cfg.Mongo.Enabled {
		mc := &mongoutil.Config{
			Uri:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
			MaxRetry:    cfg.Mongo.MaxRetry,
		}
		if err := mc.ValidateAndSetDefaults(); err != nil {
			return nil, err
		}
		r.Add(ingest.NewMongoSource(mgo.NewManager(mc), cfg.Mongo.Collection))
	}
	if cfg.Postgres.Enabled {
		r.Add(ingest.NewPgSource(cfg.Postgres.DSN, cfg.Postgres.Channel))
	}
	return r, nil
}

func kafkaConf(kc config.KafkaConfig) kafka.Config {
	return kafka.Config{
		Brokers:           kc.Brokers,
		GroupID:           kc.GroupID,
		Topics:            kc.Topics,
		Version:           kc.Version,
		InitialOffset:     kc.InitialOffset,
		AutoCreateTopics:  kc.AutoCreateTopics,
		Partitions:        kc.Partitions,
		ReplicationFactor: kc.ReplicationFactor,
	}
}

func runIngest(lc fx.Lifecycle, r *ingest.Runner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if len(r.Sources()) == 0 {
				logger.Warn("[ingest] no source enabled; only the HTTP hook can deliver messages")
			}
			logger.Info("[ingest] starting", zap.Strings("sources", r.Sources()))
			r.Start(context.Background())
			return nil
		},
		OnStop: r.Stop,
	})
}
