package chat

import (
	"context"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/safe"

	"go.uber.org/zap"
)

// PresenceChange describes one registry transition.
type PresenceChange struct {
	UserID   string
	ConnID   string
	Online   bool
	Snapshot []string
	At       time.Time
}

// PresenceHook observes presence changes, e.g. to mirror them into shared
// storage or publish them on a bus. Hooks run off the connection path.
type PresenceHook interface {
	OnPresence(ctx context.Context, change PresenceChange) error
}

type PresenceHookFunc func(ctx context.Context, change PresenceChange) error

func (f PresenceHookFunc) OnPresence(ctx context.Context, change PresenceChange) error {
	return f(ctx, change)
}

// hookRunner delivers changes to hooks in order on a single goroutine.
type hookRunner struct {
	hooks   []PresenceHook
	timeout time.Duration
	queue   chan PresenceChange

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

const hookQueueSize = 1024

func newHookRunner(hooks []PresenceHook, timeout time.Duration) *hookRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	r := &hookRunner{
		hooks:   hooks,
		timeout: timeout,
		queue:   make(chan PresenceChange, hookQueueSize),
		done:    make(chan struct{}),
	}
	safe.SafeGo("presence-hooks", r.loop)
	return r
}

func (r *hookRunner) push(c PresenceChange) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- c:
	default:
		logger.Warn("[presence] hook queue full, drop change",
			zap.String("user", c.UserID), zap.Bool("online", c.Online))
	}
}

func (r *hookRunner) loop() {
	defer close(r.done)
	for c := range r.queue {
		for _, h := range r.hooks {
			r.run(h, c)
		}
	}
}

func (r *hookRunner) run(h PresenceHook, c PresenceChange) {
	defer safe.Recover("presence-hook")
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := h.OnPresence(ctx, c); err != nil {
		logger.Warn("[presence] hook failed",
			zap.String("user", c.UserID), zap.String("conn", c.ConnID), zap.Error(err))
	}
}

// close drains queued changes and waits for the loop to exit.
func (r *hookRunner) close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}
