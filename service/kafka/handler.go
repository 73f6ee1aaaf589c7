package kafka

import (
	"context"
	"sync"

	"PPGateway/tools/errs"
)

type MessageHandler func(ctx context.Context, topic string, key, value []byte) error

// HandlerMap routes records to a handler by topic.
type HandlerMap struct {
	mu sync.RWMutex
	m  map[string]MessageHandler
}

func NewHandlerMap() *HandlerMap {
	return &HandlerMap{m: make(map[string]MessageHandler)}
}

func (hm *HandlerMap) Register(topic string, handler MessageHandler) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.m[topic] = handler
}

// RegisterAll 给多个 Topic 注册同一处理逻辑
func (hm *HandlerMap) RegisterAll(topics []string, handler MessageHandler) {
	for _, t := range topics {
		hm.Register(t, handler)
	}
}

func (hm *HandlerMap) Get(topic string) (MessageHandler, error) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	if h, ok := hm.m[topic]; ok {
		return h, nil
	}
	return nil, errs.ErrArgs.WrapMsg("no handler registered", "topic", topic)
}

func (hm *HandlerMap) Topics() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]string, 0, len(hm.m))
	for t := range hm.m {
		out = append(out, t)
	}
	return out
}
