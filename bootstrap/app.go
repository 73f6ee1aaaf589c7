package bootstrap

import (
	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/tools/ids"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Load reads the config file (path may be empty) and applies the
// process-wide settings: logger and snowflake node.
func Load(path string) (*viper.Viper, *config.AppConfig, error) {
	v := config.New(path)
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	logger.Setup(cfg.Log)
	ids.SetNodeID(cfg.SnowNode)
	return v, cfg, nil
}

// Options assembles the application graph. Infrastructure modules are only
// loaded when enabled in cfg. v may be nil, which disables config watching.
//
// Stop order is the reverse of start: ingest sources, then servers, then the
// gateway and finally the clients it depends on.
func Options(cfg *config.AppConfig, v *viper.Viper) fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: logger.Log.WithOptions(zap.AddCallerSkip(-1)).Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.StopTimeout(stopTimeout(cfg)),
	}
	if v != nil {
		opts = append(opts, fx.Supply(v), fx.Invoke(watchConfig))
	}

	// ===== 基础设施（按配置加载）=====
	if cfg.Redis.Enabled {
		opts = append(opts, RedisModule)
	}
	if cfg.Nats.Enabled {
		opts = append(opts, NatsModule)
	}

	opts = append(opts, GatewayModule, HTTPModule)
	if cfg.Server.GrpcAddr != "" {
		opts = append(opts, GrpcModule)
	}
	opts = append(opts, IngestModule)
	return fx.Options(opts...)
}

func New(cfg *config.AppConfig, v *viper.Viper) *fx.App {
	return fx.New(Options(cfg, v))
}
