package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/middleware"
	"PPGateway/middleware/security"
	"PPGateway/service/chat"
	"PPGateway/service/ingest"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HTTPModule serves /ws, the internal hook, /online, /healthz and /metrics.
var HTTPModule = fx.Module("http",
	fx.Provide(newMiddlewareManager, newEngine),
	fx.Invoke(runHTTPServer),
)

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}

func newMiddlewareManager(cfg *config.AppConfig) *middleware.MiddlewareManager {
	return middleware.NewManager(middleware.CORS(cfg.Server.AllowedOrigins))
}

func newEngine(cfg *config.AppConfig, gw *chat.Gateway, reg *prometheus.Registry, mids *middleware.MiddlewareManager) *gin.Engine {
	gin.SetMode(ginMode(cfg.Server.Mode))
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.AccessLog("/healthz", "/metrics"), mids.Use())

	ws := chat.NewWSHandler(gw, clientConf(cfg.Gateway), cfg.Server.UserQueryKey,
		middleware.OriginChecker(cfg.Server.AllowedOrigins))
	r.GET(cfg.Server.WSPath, ws.HandleWS)

	ingest.NewHTTPHook(gw, gw).Register(r, cfg.Server.InternalHook,
		security.Middleware(security.DefaultOptions(cfg.Server.InternalToken)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"node":        cfg.NodeID,
			"connections": gw.Connections(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return r
}

func runHTTPServer(lc fx.Lifecycle, cfg *config.AppConfig, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return errs.WrapMsg(err, "http listen", "addr", srv.Addr)
			}
			logger.Info("[http] listening", zap.String("addr", ln.Addr().String()), zap.String("ws", cfg.Server.WSPath))
			safe.SafeGo("http-server", func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("[http] serve failed", zap.Error(err))
				}
			})
			return nil
		},
		// websocket 连接已被 hijack，由 gateway 的 OnStop 关闭
		OnStop: srv.Shutdown,
	})
}
