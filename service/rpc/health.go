package rpc

import (
	"context"
	"time"

	"PPGateway/tools/errs"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type Config struct {
	Target      string        // gRPC service address
	Service     string        // 空=整体状态
	DialTimeout time.Duration // 单次检查超时
}

// HealthClient asks a gateway's gRPC health service for its status, e.g.
// from a container health check.
type HealthClient struct {
	cfg    Config
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

func NewHealthClient(cfg Config, opts ...grpc.DialOption) (*HealthClient, error) {
	if cfg.Target == "" {
		return nil, errs.ErrArgs.WrapMsg("grpc target missing")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "grpc client", "target", cfg.Target)
	}
	return &HealthClient{cfg: cfg, conn: conn, health: grpc_health_v1.NewHealthClient(conn)}, nil
}

// Check returns nil only when the service reports SERVING.
func (c *HealthClient) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: c.cfg.Service})
	if err != nil {
		return errs.WrapMsg(err, "health check", "target", c.cfg.Target, "service", c.cfg.Service)
	}
	if st := resp.GetStatus(); st != grpc_health_v1.HealthCheckResponse_SERVING {
		return errs.ErrInternalServer.WrapMsg("not serving", "target", c.cfg.Target, "status", st.String())
	}
	return nil
}

func (c *HealthClient) Close() error {
	return c.conn.Close()
}

// Probe is a one-shot Check.
func Probe(ctx context.Context, cfg Config) error {
	c, err := NewHealthClient(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Check(ctx)
}
