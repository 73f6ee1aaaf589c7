package bootstrap

import (
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func stopTimeout(cfg *config.AppConfig) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		// 留出余量给 fx 串行执行的多个 OnStop
		return cfg.Server.ShutdownTimeout * 2
	}
	return 15 * time.Second
}

func watchConfig(v *viper.Viper) {
	config.Watch(v, func(c *config.AppConfig) {
		logger.Info("[config] new values apply on restart except log level",
			zap.String("level", c.Log.Level))
	})
}
