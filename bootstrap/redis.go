package bootstrap

import (
	"context"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/service/chat"
	"PPGateway/service/storage"
	rediscli "PPGateway/service/storage/redis"
	"PPGateway/tools/safe"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RedisModule mirrors the registry into Redis and keeps the entries alive.
var RedisModule = fx.Module("redis",
	fx.Provide(newRedisClient, newPresenceStore),
	fx.Invoke(runPresenceRefresh),
)

func newRedisClient(lc fx.Lifecycle, cfg *config.AppConfig) (*redis.Client, error) {
	rdb, err := rediscli.NewClient(context.Background(), rediscli.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("[redis] connected", zap.String("addr", cfg.Redis.Addr), zap.Int("db", cfg.Redis.DB))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return rdb.Close() },
	})
	return rdb, nil
}

func newPresenceStore(rdb *redis.Client, cfg *config.AppConfig) *storage.PresenceStore {
	return storage.NewPresenceStore(rdb, storage.PresenceConfig{
		NodeID:  cfg.NodeID,
		TTL:     cfg.Redis.PresenceTTL,
		Channel: cfg.Redis.Channel,
	})
}

// runPresenceRefresh clears what a previous run of this node left and then
// renews the TTL of every registered user at a third of the TTL.
func runPresenceRefresh(lc fx.Lifecycle, cfg *config.AppConfig, store *storage.PresenceStore, gw *chat.Gateway) {
	every := cfg.Redis.PresenceTTL / 3
	if every <= 0 {
		every = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			n, err := store.ClearNode(startCtx)
			if err != nil {
				cancel()
				return err
			}
			logger.Info("[presence] stale entries cleared", zap.String("node", cfg.NodeID), zap.Int64("count", n))
			safe.SafeGo("presence-refresh", func() {
				defer close(done)
				refreshLoop(ctx, store, gw.Registry(), every)
			})
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func refreshLoop(ctx context.Context, store *storage.PresenceStore, reg *chat.Registry, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			entries := reg.Entries()
			n, err := store.Refresh(ctx, entries)
			if err != nil {
				logger.Warn("[presence] refresh failed", zap.Int("users", len(entries)), zap.Error(err))
				continue
			}
			if n < len(entries) {
				logger.Debug("[presence] refresh skipped stale entries", zap.Int("users", len(entries)), zap.Int("renewed", n))
			}
		}
	}
}
