package ingest

import (
	"context"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PgSource LISTENs on a PostgreSQL channel; each NOTIFY payload is one
// message JSON.
type PgSource struct {
	dsn     string
	channel string
	retry   time.Duration
}

func NewPgSource(dsn, channel string) *PgSource {
	return &PgSource{dsn: dsn, channel: channel, retry: 2 * time.Second}
}

func (s *PgSource) Name() string { return "postgres" }

func (s *PgSource) Run(ctx context.Context, d Deliverer) error {
	for {
		err := s.listen(ctx, d)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("[ingest] pg listen interrupted", zap.String("channel", s.channel), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retry):
		}
	}
}

func (s *PgSource) listen(ctx context.Context, d Deliverer) error {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return errs.WrapMsg(err, "pg connect")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, listenSQL(s.channel)); err != nil {
		return errs.WrapMsg(err, "pg listen", "channel", s.channel)
	}
	logger.Info("[ingest] pg listening", zap.String("channel", s.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return errs.WrapMsg(err, "pg wait notification")
		}
		msg, err := DecodeMessage([]byte(n.Payload))
		if err != nil {
			logger.Warn("[ingest] pg payload decode", zap.Uint32("pid", n.PID), zap.Error(err))
			continue
		}
		deliver(d, "postgres", msg)
	}
}

func listenSQL(channel string) string {
	return "LISTEN " + pgx.Identifier{channel}.Sanitize()
}
