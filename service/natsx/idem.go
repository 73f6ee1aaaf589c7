package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPGateway/logger"

	"go.uber.org/zap"
)

// ----- 抽象存储 -----
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// ----- 内存实现（单进程） -----
type MemIdem struct {
	mu   sync.Mutex
	m    map[string]time.Time // key -> expireAt
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemIdem starts a sweeper that runs every sweep interval until Close.
func NewMemIdem(defaultTTL, sweep time.Duration) *MemIdem {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if sweep <= 0 {
		sweep = time.Minute
	}
	mi := &MemIdem{
		m:    make(map[string]time.Time),
		ttl:  defaultTTL,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	// 清理协程
	go func() {
		t := time.NewTicker(sweep)
		defer t.Stop()
		for {
			select {
			case <-mi.stop:
				return
			case <-t.C:
				mi.sweep()
			}
		}
	}()
	return mi
}

func (mi *MemIdem) sweep() {
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	for k, exp := range mi.m {
		if !exp.After(now) {
			delete(mi.m, k)
		}
	}
}

func (mi *MemIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil // 已见过
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

func (mi *MemIdem) Len() int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return len(mi.m)
}

func (mi *MemIdem) Close() {
	mi.once.Do(func() { close(mi.stop) })
}

// ----- 从消息头提取 msgID -----
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{"Nats-Msg-Id", "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// KeyFunc derives a dedup key from the payload when no id header is set.
// Returning "" falls back to subject + body.
type KeyFunc func(msg NatsxMessage) string

// ----- 幂等中间件 -----
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration, keyFn KeyFunc) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" && keyFn != nil {
				id = keyFn(msg)
			}
			if id == "" {
				// 无ID时根据 subject+内容构造一个弱ID
				id = msg.Subject + "|" + strings.TrimSpace(string(msg.Data))
			}
			seen, err := store.SeenOnce(id, ttl)
			if err != nil {
				logger.Warn("[natsx] idem store failed, handling anyway", zap.String("id", id), zap.Error(err))
			}
			if seen {
				logger.Debug("[natsx] duplicate skipped", zap.String("id", id), zap.String("subject", msg.Subject))
				return nil
			}
			return next(ctx, msg)
		}
	}
}
