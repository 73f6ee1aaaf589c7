package natsx

import (
	"context"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// NatsxMessage 统一消息对象
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler 业务处理函数
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 中间件（日志、指标、重试等）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 组合中间件
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxRecover turns a handler panic into an error so JetStream naks the
// message instead of the subscription goroutine dying.
func NatsxRecover() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errs.ErrPanic(r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// NatsxLogErrors logs failed handler calls with the subject.
func NatsxLogErrors() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			err := next(ctx, msg)
			if err != nil {
				logger.Warn("[natsx] handle failed",
					zap.String("subject", msg.Subject), zap.Int("bytes", len(msg.Data)), zap.Error(err))
			}
			return err
		}
	}
}
