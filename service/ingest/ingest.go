package ingest

import (
	"context"
	"sync"

	"PPGateway/logger"
	"PPGateway/service/chat"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deliverer receives every persisted message picked up by a source.
type Deliverer interface {
	DeliverNewMessage(msg chat.Message) int
}

// Source is one feed of "message persisted" events. Run blocks until ctx
// ends or the source fails for good.
type Source interface {
	Name() string
	Run(ctx context.Context, d Deliverer) error
}

type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, d Deliverer) error
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Run(ctx context.Context, d Deliverer) error { return s.Fn(ctx, d) }

// Runner runs all sources side by side. A failing source is logged and
// leaves the others running.
type Runner struct {
	d       Deliverer
	sources []Source

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(d Deliverer, sources ...Source) *Runner {
	safe.MustNotNil(d, "deliverer")
	return &Runner{d: d, sources: sources}
}

func (r *Runner) Add(s Source) { r.sources = append(r.sources, s) }

func (r *Runner) Sources() []string {
	out := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s.Name())
	}
	return out
}

// Run blocks until every source has returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.sources {
		s := s
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = errs.ErrPanic(p)
					logger.Error("[ingest] source panicked", zap.String("source", s.Name()), zap.Error(err))
					err = nil
				}
			}()
			logger.Info("[ingest] source started", zap.String("source", s.Name()))
			if err := s.Run(ctx, r.d); err != nil && ctx.Err() == nil {
				logger.Error("[ingest] source stopped", zap.String("source", s.Name()), zap.Error(err))
				return nil
			}
			logger.Info("[ingest] source finished", zap.String("source", s.Name()))
			return nil
		})
	}
	return g.Wait()
}

// Start runs the sources in the background until Stop.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
}

// Stop cancels the sources and waits for them or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.WrapMsg(ctx.Err(), "ingest stop")
	}
}

// deliver validates msg and hands it over, logging the outcome.
func deliver(d Deliverer, source string, msg chat.Message) int {
	if err := msg.Validate(); err != nil {
		logger.Warn("[ingest] drop invalid message", zap.String("source", source), zap.Error(err))
		return 0
	}
	n := d.DeliverNewMessage(msg)
	logger.Debug("[ingest] delivered",
		zap.String("source", source), zap.String("msg", msg.ID), zap.Int("recipients", n))
	return n
}
