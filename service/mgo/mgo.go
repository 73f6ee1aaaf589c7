package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"PPGateway/data/database/mgo/mongoutil"
	"PPGateway/logger"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// Manager keeps one MongoDB client alive: it connects with backoff, pings
// periodically and reconnects after repeated failures.
type Manager struct {
	cfg *mongoutil.Config

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once
	done      chan struct{}

	lastErr atomic.Value // error
}

func NewManager(cfg *mongoutil.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		readyCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// StartAsync 一直运行到 ctx.Done()；首次连上时 close readyCh，掉线后自动重连
func (m *Manager) StartAsync(ctx context.Context) {
	safe.SafeGo("mongo-manager", func() {
		defer close(m.done)
		for {
			if !m.connect(ctx) {
				return
			}
			if !m.watchHealth(ctx) {
				return
			}
		}
	})
}

// Done is closed once StartAsync's loop has exited and the client is gone.
func (m *Manager) Done() <-chan struct{} { return m.done }

// ===== 连接阶段（带退避重试） =====
func (m *Manager) connect(ctx context.Context) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mongoutil.NewMongoDB(ctx, m.cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("[mongo] connected", zap.String("database", m.cfg.Database))
			return true
		}

		m.lastErr.Store(err)
		logger.Warn("[mongo] connect failed", zap.Int("attempt", attempt), zap.Error(err))

		timer := time.NewTimer(backoffFor(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// 退避 + 抖动（0~20%）
func backoffFor(attempt int) time.Duration {
	backoff := baseBackoff << attempt
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff / 5)))
	return backoff - jitter/2
}

// ===== 健康检查阶段（保持/掉线→重连）=====
// Returns false when ctx ended, true when the caller should reconnect.
func (m *Manager) watchHealth(ctx context.Context) bool {
	fail := 0
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			c, ok := m.Client()
			if !ok {
				return true
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err == nil {
				fail = 0
				continue
			}
			fail++
			m.lastErr.Store(err)
			logger.Warn("[mongo] ping failed", zap.Int("fail", fail), zap.Error(err))
			if fail >= failThresh {
				m.drop()
				return true
			}
		}
	}
}

func (m *Manager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = m.client.Disconnect(ctx)
		m.client = nil
	}
}

// Ready 首次连接成功时会 close
func (m *Manager) Ready() <-chan struct{} {
	return m.readyCh
}

// Err 最近一次错误
func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *Manager) Client() (*mongoutil.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client, m.client != nil
}

func (m *Manager) TryGetDB() (*mongo.Database, bool) {
	c, ok := m.Client()
	if !ok {
		return nil, false
	}
	return c.GetDB(), true
}

// WaitReady blocks until the first successful connection or ctx ends.
func (m *Manager) WaitReady(ctx context.Context) (*mongo.Database, error) {
	select {
	case <-m.readyCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	db, ok := m.TryGetDB()
	if !ok {
		return nil, errs.ErrNotInitialized.WrapMsg("mongo disconnected", "lastErr", m.Err())
	}
	return db, nil
}
