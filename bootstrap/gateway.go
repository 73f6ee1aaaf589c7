package bootstrap

import (
	"context"

	"PPGateway/global/config"
	"PPGateway/service/chat"
	"PPGateway/service/natsx"
	"PPGateway/service/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

var GatewayModule = fx.Module("gateway",
	fx.Provide(newPromRegistry, newGateway),
)

func newPromRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type gatewayIn struct {
	fx.In

	LC  fx.Lifecycle
	Cfg *config.AppConfig
	Reg *prometheus.Registry

	// 可选的 presence 观察者，执行顺序固定：先 Redis 再 NATS
	Store    *storage.PresenceStore   `optional:"true"`
	Notifier *natsx.PresencePublisher `optional:"true"`
}

func newGateway(in gatewayIn) (*chat.Gateway, error) {
	m, err := chat.NewPromMetrics(in.Reg)
	if err != nil {
		return nil, err
	}
	opts := []chat.Option{chat.WithMetrics(m)}

	gc := in.Cfg.Gateway
	if gc.FanoutWorkers > 0 {
		opts = append(opts, chat.WithFanout(chat.NewFanout(gc.FanoutWorkers, gc.FanoutQueue)))
	}

	var hooks []chat.PresenceHook
	if in.Store != nil {
		hooks = append(hooks, in.Store)
	}
	if in.Notifier != nil {
		hooks = append(hooks, in.Notifier)
	}
	if len(hooks) > 0 {
		opts = append(opts, chat.WithPresenceHooks(hooks...))
	}

	gw := chat.NewGateway(chat.GatewayConf{
		RebroadcastDelay: gc.RebroadcastDelay,
		HookTimeout:      gc.HookTimeout,
	}, opts...)
	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			gw.Close()
			return nil
		},
	})
	return gw, nil
}

func clientConf(gc config.GatewayConfig) chat.ClientConf {
	return chat.ClientConf{
		SendQueue:      gc.SendQueue,
		WriteWait:      gc.WriteWait,
		PongWait:       gc.PongWait,
		PingPeriod:     gc.PingPeriod,
		MaxMessageSize: gc.MaxMessageSize,
	}
}
