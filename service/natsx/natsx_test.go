package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PPGateway/service/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, Core, ParseMode(""))
	assert.Equal(t, Core, ParseMode("core"))
	assert.Equal(t, JetStreamPush, ParseMode("JS_PUSH"))
	assert.Equal(t, JetStreamPull, ParseMode(" js_pull "))
	assert.Equal(t, "js_pull", JetStreamPull.String())
}

func TestChainOrder(t *testing.T) {
	var trace []string
	mw := func(name string) NatsxMiddleware {
		return func(next NatsxHandler) NatsxHandler {
			return func(ctx context.Context, msg NatsxMessage) error {
				trace = append(trace, name)
				return next(ctx, msg)
			}
		}
	}
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		trace = append(trace, "handler")
		return nil
	}, mw("a"), mw("b"))

	require.NoError(t, h(context.Background(), NatsxMessage{}))
	assert.Equal(t, []string{"a", "b", "handler"}, trace)
}

func TestRecoverMiddleware(t *testing.T) {
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		panic("boom")
	}, NatsxRecover())

	err := h(context.Background(), NatsxMessage{Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestIdemMiddleware(t *testing.T) {
	store := NewMemIdem(time.Minute, time.Hour)
	defer store.Close()

	calls := 0
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(store, 0, func(msg NatsxMessage) string {
		var m struct {
			ID string `json:"_id"`
		}
		_ = json.Unmarshal(msg.Data, &m)
		return m.ID
	}))

	ctx := context.Background()
	require.NoError(t, h(ctx, NatsxMessage{Data: []byte(`{"_id":"m1"}`)}))
	require.NoError(t, h(ctx, NatsxMessage{Data: []byte(`{"_id":"m1","text":"retry"}`)}))
	require.NoError(t, h(ctx, NatsxMessage{Data: []byte(`{"_id":"m2"}`)}))
	require.NoError(t, h(ctx, NatsxMessage{Header: map[string]string{"Nats-Msg-Id": "m2"}}))
	assert.Equal(t, 2, calls)
}

func TestMemIdemExpiry(t *testing.T) {
	store := NewMemIdem(time.Minute, time.Hour)
	defer store.Close()

	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	seen, err := store.SeenOnce("k", time.Second)
	require.NoError(t, err)
	assert.False(t, seen)
	seen, _ = store.SeenOnce("k", time.Second)
	assert.True(t, seen)

	now = now.Add(2 * time.Second)
	store.sweep()
	assert.Zero(t, store.Len())
	seen, _ = store.SeenOnce("k", time.Second)
	assert.False(t, seen)
}

type recordPublisher struct {
	mu    sync.Mutex
	fails int
	calls []string
	last  []byte
}

func (p *recordPublisher) Publish(_ context.Context, biz string, data []byte, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, biz)
	if p.fails > 0 {
		p.fails--
		return errors.New("unavailable")
	}
	p.last = data
	return nil
}

func TestSyncPublisherRetries(t *testing.T) {
	rec := &recordPublisher{fails: 2}
	sp := &NatsxSyncPublisher{P: rec, Retries: 2, Backoff: time.Millisecond}
	require.NoError(t, sp.Publish(context.Background(), BizPresence, []byte("x"), nil))
	assert.Len(t, rec.calls, 3)

	rec = &recordPublisher{fails: 5}
	sp = &NatsxSyncPublisher{P: rec, Retries: 1, Backoff: time.Millisecond}
	assert.Error(t, sp.Publish(context.Background(), BizPresence, []byte("x"), nil))
	assert.Len(t, rec.calls, 2)
}

func TestPresencePublisher(t *testing.T) {
	rec := &recordPublisher{}
	p := NewPresencePublisher("gateway_01", rec)

	at := time.UnixMilli(1_700_000_000_123)
	err := p.OnPresence(context.Background(), chat.PresenceChange{
		UserID: "u1", ConnID: "c1", Online: false, Snapshot: nil, At: at,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{BizPresence}, rec.calls)

	var notice PresenceNotice
	require.NoError(t, json.Unmarshal(rec.last, &notice))
	assert.Equal(t, PresenceNotice{Node: "gateway_01", Users: []string{}, TS: 1_700_000_000_123}, notice)
	assert.JSONEq(t, `{"node":"gateway_01","users":[],"ts":1700000000123}`, string(rec.last))
}
