package config

import (
	"PPGateway/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watch re-decodes the config whenever the file behind v changes and hands
// the result to onChange. The log level is applied here; other sections
// only take effect on restart.
func Watch(v *viper.Viper, onChange func(*AppConfig)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			logger.Warn("[config] reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.SetLevel(cfg.Log.Level)
		logger.Info("[config] reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
}
