package bootstrap

import (
	"context"
	"net"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported next to the overall status.
const HealthService = "ppgateway.Gateway"

// GrpcModule serves the standard gRPC health protocol for orchestrators.
var GrpcModule = fx.Module("grpc",
	fx.Provide(health.NewServer),
	fx.Invoke(runGrpcServer),
)

func runGrpcServer(lc fx.Lifecycle, cfg *config.AppConfig, hs *health.Server) {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.Server.GrpcAddr)
			if err != nil {
				return errs.WrapMsg(err, "grpc listen", "addr", cfg.Server.GrpcAddr)
			}
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
			logger.Info("[gRPC] listening", zap.String("addr", lis.Addr().String()))
			safe.SafeGo("grpc-server", func() {
				if err := gs.Serve(lis); err != nil {
					logger.Error("[gRPC] serve failed", zap.Error(err))
				}
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hs.Shutdown()
			stopped := make(chan struct{})
			go func() {
				gs.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				gs.Stop()
			}
			return nil
		},
	})
}
