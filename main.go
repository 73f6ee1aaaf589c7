package main

import (
	"context"
	"flag"
	"os"

	"PPGateway/bootstrap"
	"PPGateway/logger"
	"PPGateway/service/rpc"
	"PPGateway/tools"

	"go.uber.org/zap"
)

func main() {
	path := flag.String("config", tools.GetEnv("PPGW_CONFIG", ""), "gateway YAML config file")
	probe := flag.String("probe", "", "check the gRPC health service at this address and exit")
	flag.Parse()

	if *probe != "" {
		err := rpc.Probe(context.Background(), rpc.Config{Target: *probe, Service: bootstrap.HealthService})
		if err != nil {
			logger.Error("[main] probe failed", zap.String("target", *probe), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	v, cfg, err := bootstrap.Load(*path)
	if err != nil {
		logger.Error("[main] load config", zap.String("path", *path), zap.Error(err))
		os.Exit(1)
	}
	logger.Info("[main] starting gateway",
		zap.String("node", cfg.NodeID),
		zap.String("addr", cfg.Server.Addr),
		zap.String("config", v.ConfigFileUsed()))

	// Run 阻塞直到 SIGINT/SIGTERM，然后按逆序执行 OnStop
	bootstrap.New(cfg, v).Run()
	logger.Sync()
}
