package bootstrap

import (
	"context"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/service/ingest"
	"PPGateway/service/natsx"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NatsModule connects to NATS, registers the message and presence routes
// and provides the presence publisher hook.
var NatsModule = fx.Module("nats",
	fx.Provide(newNatsManager, newPresencePublisher),
)

func newNatsManager(lc fx.Lifecycle, cfg *config.AppConfig) (*natsx.NatsManager, error) {
	nc := cfg.Nats
	idem := natsx.NewMemIdem(nc.IdemTTL, time.Minute)
	mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
		Servers:  nc.Servers,
		Name:     nc.Name,
		User:     nc.User,
		Password: nc.Password,
	},
		natsx.NatsxRecover(),
		natsx.NatsxLogErrors(),
		natsx.NatsxIdemMiddleware(idem, nc.IdemTTL, ingest.MessageIDKey),
	)
	if err != nil {
		idem.Close()
		return nil, err
	}

	routes := []natsx.NatsxRoute{{
		Biz:     natsx.BizMessage,
		Subject: nc.MessageSubject,
		Mode:    natsx.ParseMode(nc.Mode),
		Queue:   nc.Queue,
		Durable: nc.Durable,
	}}
	if nc.PresenceSubject != "" {
		routes = append(routes, natsx.NatsxRoute{
			Biz:     natsx.BizPresence,
			Subject: nc.PresenceSubject,
			Mode:    natsx.Core,
		})
	}
	for _, r := range routes {
		if err := mgr.RegisterRoute(r); err != nil {
			_ = mgr.Close()
			idem.Close()
			return nil, err
		}
	}
	logger.Info("[natsx] connected",
		zap.Strings("servers", nc.Servers),
		zap.String("subject", nc.MessageSubject),
		zap.String("mode", natsx.ParseMode(nc.Mode).String()))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			defer idem.Close()
			return mgr.Close()
		},
	})
	return mgr, nil
}

// newPresencePublisher returns nil when no presence subject is configured;
// the gateway skips a nil hook.
func newPresencePublisher(cfg *config.AppConfig, mgr *natsx.NatsManager) *natsx.PresencePublisher {
	if cfg.Nats.PresenceSubject == "" {
		return nil
	}
	pub := &natsx.NatsxSyncPublisher{P: mgr, Retries: 2, Backoff: 200 * time.Millisecond}
	return natsx.NewPresencePublisher(cfg.NodeID, pub)
}
