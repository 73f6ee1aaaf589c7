package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"PPGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// test peer
// ============================================================================

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type fakePeer struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
	delay  time.Duration
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Emit(frame []byte) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs.ErrConnClosed.Wrap()
	}
	if p.full {
		return errs.ErrSendQueueFull.Wrap()
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) events(t *testing.T) []wireEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wireEvent, 0, len(p.frames))
	for _, f := range p.frames {
		var ev wireEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (p *fakePeer) onlineLists(t *testing.T) [][]string {
	t.Helper()
	var out [][]string
	for _, ev := range p.events(t) {
		if ev.Event != string(EventOnlineUsers) {
			continue
		}
		var users []string
		require.NoError(t, json.Unmarshal(ev.Data, &users))
		out = append(out, users)
	}
	return out
}

func (p *fakePeer) messages(t *testing.T) []Message {
	t.Helper()
	var out []Message
	for _, ev := range p.events(t) {
		if ev.Event != string(EventNewMessage) {
			continue
		}
		var payload struct {
			NewMessage Message `json:"newMessage"`
		}
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		out = append(out, payload.NewMessage)
	}
	return out
}

func (p *fakePeer) lastOnline(t *testing.T) []string {
	t.Helper()
	lists := p.onlineLists(t)
	if len(lists) == 0 {
		return nil
	}
	return lists[len(lists)-1]
}

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	g := NewGateway(GatewayConf{}, opts...)
	t.Cleanup(g.Close)
	return g
}

func testMessage(from, to string) Message {
	return Message{
		ID:         "m-" + from + "-" + to,
		SenderID:   from,
		ReceiverID: to,
		Text:       "hello",
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ============================================================================
// lifecycle
// ============================================================================

func TestOnConnectBroadcastsToAll(t *testing.T) {
	g := newTestGateway(t)
	observer := newFakePeer("anon")
	g.OnConnect(observer, Handshake{})

	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})

	assert.Equal(t, []string{"u1"}, g.OnlineUsers())
	assert.Equal(t, [][]string{{"u1"}}, observer.onlineLists(t), "anonymous connections hear presence")
	assert.Equal(t, [][]string{{"u1"}}, a.onlineLists(t))
	assert.Equal(t, 2, g.Connections())
}

func TestOnConnectWithoutUserIsNotRegistered(t *testing.T) {
	g := newTestGateway(t)
	p := newFakePeer("c1")
	g.OnConnect(p, Handshake{})

	assert.Empty(t, g.OnlineUsers())
	assert.Empty(t, p.events(t), "no broadcast for an anonymous connect")

	g.OnDisconnect("c1")
	assert.Zero(t, g.Connections())
}

func TestOnDisconnectRebroadcasts(t *testing.T) {
	g := newTestGateway(t)
	a, b := newFakePeer("c1"), newFakePeer("c2")
	g.OnConnect(a, Handshake{UserID: "u1"})
	g.OnConnect(b, Handshake{UserID: "u2"})

	g.OnDisconnect("c2")

	assert.Equal(t, []string{"u1"}, g.OnlineUsers())
	assert.Equal(t, []string{"u1"}, a.lastOnline(t))
	assert.Len(t, b.onlineLists(t), 1, "closed connection gets nothing after leaving")
}

func TestOnDisconnectUnknownIsNoop(t *testing.T) {
	g := newTestGateway(t)
	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})

	g.OnDisconnect("missing")
	g.OnDisconnect("missing")

	assert.Equal(t, []string{"u1"}, g.OnlineUsers())
	assert.Len(t, a.onlineLists(t), 1)
}

func TestReconnectRaceKeepsNewerConnection(t *testing.T) {
	g := newTestGateway(t)
	oldConn, newConn := newFakePeer("old"), newFakePeer("new")
	g.OnConnect(oldConn, Handshake{UserID: "u1"})
	g.OnConnect(newConn, Handshake{UserID: "u1"})

	// the stale socket finally reports its disconnect
	g.OnDisconnect("old")

	connID, ok := g.Registry().Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "new", connID)
	assert.Equal(t, []string{"u1"}, g.OnlineUsers())

	assert.Equal(t, 1, g.DeliverNewMessage(testMessage("u1", "u1")))
	assert.Len(t, newConn.messages(t), 1)
	assert.Empty(t, oldConn.messages(t))
}

func TestRebroadcastFiresOnce(t *testing.T) {
	g := NewGateway(GatewayConf{RebroadcastDelay: 30 * time.Millisecond})
	t.Cleanup(g.Close)

	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})
	require.Len(t, a.onlineLists(t), 1)

	assert.Eventually(t, func() bool { return len(a.onlineLists(t)) == 2 },
		time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, [][]string{{"u1"}, {"u1"}}, a.onlineLists(t))
}

func TestRebroadcastCancelledOnDisconnect(t *testing.T) {
	g := NewGateway(GatewayConf{RebroadcastDelay: 80 * time.Millisecond})
	t.Cleanup(g.Close)

	observer := newFakePeer("anon")
	g.OnConnect(observer, Handshake{})
	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})
	g.OnDisconnect("c1")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, [][]string{{"u1"}, {}}, observer.onlineLists(t))
}

// ============================================================================
// delivery
// ============================================================================

func TestDeliverToBothParticipants(t *testing.T) {
	g := newTestGateway(t)
	a, b := newFakePeer("c1"), newFakePeer("c2")
	g.OnConnect(a, Handshake{UserID: "u1"})
	g.OnConnect(b, Handshake{UserID: "u2"})

	msg := testMessage("u1", "u2")
	assert.Equal(t, 2, g.DeliverNewMessage(msg))

	require.Len(t, a.messages(t), 1)
	require.Len(t, b.messages(t), 1)
	assert.Equal(t, msg, a.messages(t)[0])
	assert.Equal(t, a.messages(t)[0], b.messages(t)[0])
}

func TestDeliverNobodyOnline(t *testing.T) {
	g := newTestGateway(t)
	observer := newFakePeer("anon")
	g.OnConnect(observer, Handshake{})

	assert.Zero(t, g.DeliverNewMessage(testMessage("u1", "u2")))
	assert.Empty(t, observer.messages(t))
}

func TestDeliverSenderEchoWithoutReceiver(t *testing.T) {
	g := newTestGateway(t)
	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})

	assert.Equal(t, 1, g.DeliverNewMessage(testMessage("u1", "offline")))
	assert.Len(t, a.messages(t), 1)
}

func TestDeliverSurvivesClosedRecipient(t *testing.T) {
	g := newTestGateway(t)
	a, b := newFakePeer("c1"), newFakePeer("c2")
	g.OnConnect(a, Handshake{UserID: "u1"})
	g.OnConnect(b, Handshake{UserID: "u2"})
	require.NoError(t, b.Close())

	assert.NotPanics(t, func() {
		assert.Equal(t, 1, g.DeliverNewMessage(testMessage("u1", "u2")))
	})
	assert.Len(t, a.messages(t), 1)
}

func TestDeliverSurvivesFullQueue(t *testing.T) {
	g := newTestGateway(t)
	a, b := newFakePeer("c1"), newFakePeer("c2")
	g.OnConnect(a, Handshake{UserID: "u1"})
	g.OnConnect(b, Handshake{UserID: "u2"})
	a.mu.Lock()
	a.full = true
	a.mu.Unlock()

	assert.Equal(t, 1, g.DeliverNewMessage(testMessage("u1", "u2")))
	assert.Len(t, b.messages(t), 1)
}

func TestDeliverToSelfOnce(t *testing.T) {
	g := newTestGateway(t)
	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})

	assert.Equal(t, 1, g.DeliverNewMessage(testMessage("u1", "u1")))
	assert.Len(t, a.messages(t), 1)
}

func TestEndToEndScenario(t *testing.T) {
	g := newTestGateway(t)
	a, b := newFakePeer("ca"), newFakePeer("cb")
	g.OnConnect(a, Handshake{UserID: "u1"})
	g.OnConnect(b, Handshake{UserID: "u2"})
	assert.ElementsMatch(t, []string{"u1", "u2"}, g.OnlineUsers())

	msg := testMessage("u1", "u2")
	g.DeliverNewMessage(msg)
	assert.Equal(t, []Message{msg}, b.messages(t))
	assert.Equal(t, []Message{msg}, a.messages(t), "sender echo")

	g.OnDisconnect("cb")
	assert.Equal(t, []string{"u1"}, g.OnlineUsers())
	assert.Equal(t, []string{"u1"}, a.lastOnline(t))
}

// ============================================================================
// hooks, fanout, close
// ============================================================================

func TestPresenceHooksSeeChangesInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		changes []PresenceChange
	)
	hook := PresenceHookFunc(func(_ context.Context, c PresenceChange) error {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
		return nil
	})
	g := newTestGateway(t, WithPresenceHooks(hook))

	g.OnConnect(newFakePeer("c1"), Handshake{UserID: "u1"})
	g.OnConnect(newFakePeer("c2"), Handshake{UserID: "u1"})
	g.OnDisconnect("c1") // stale, not reported
	g.OnDisconnect("c2")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, changes[0].Online)
	assert.Equal(t, "c1", changes[0].ConnID)
	assert.True(t, changes[1].Online)
	assert.Equal(t, "c2", changes[1].ConnID)
	assert.False(t, changes[2].Online)
	assert.Equal(t, "c2", changes[2].ConnID)
	assert.Empty(t, changes[2].Snapshot)
}

func TestFanoutBroadcast(t *testing.T) {
	g := newTestGateway(t, WithFanout(NewFanout(2, 16)))
	peers := []*fakePeer{newFakePeer("c1"), newFakePeer("c2"), newFakePeer("c3")}
	for i, p := range peers {
		g.OnConnect(p, Handshake{UserID: []string{"u1", "u2", "u3"}[i]})
	}

	for _, p := range peers {
		p := p
		assert.Eventually(t, func() bool {
			return len(p.lastOnline(t)) == 3
		}, time.Second, 5*time.Millisecond)
	}
}

func TestFanoutKeepsPerPeerOrder(t *testing.T) {
	const users = 20
	for round := 0; round < 5; round++ {
		g := NewGateway(GatewayConf{}, WithFanout(NewFanout(8, 4)))
		observer := newFakePeer("obs")
		g.OnConnect(observer, Handshake{})

		peers := make([]*fakePeer, users)
		for i := range peers {
			peers[i] = newFakePeer(fmt.Sprintf("c%d", i))
			peers[i].delay = time.Millisecond
		}

		var wg sync.WaitGroup
		for i, p := range peers {
			wg.Add(1)
			go func(i int, p *fakePeer) {
				defer wg.Done()
				g.OnConnect(p, Handshake{UserID: fmt.Sprintf("u%d", i)})
			}(i, p)
		}
		wg.Wait()
		for _, p := range peers {
			wg.Add(1)
			go func(p *fakePeer) {
				defer wg.Done()
				g.OnDisconnect(p.ID())
			}(p)
		}
		wg.Wait()

		require.Empty(t, g.OnlineUsers())
		// one broadcast per connect and per disconnect
		require.Eventually(t, func() bool {
			return len(observer.onlineLists(t)) == 2*users
		}, 5*time.Second, 5*time.Millisecond, "round %d", round)

		lists := observer.onlineLists(t)
		assert.Empty(t, lists[len(lists)-1], "round %d: observer ends on a stale list", round)
		assert.Len(t, lists[users-1], users, "round %d", round)
		for i := 1; i < len(lists); i++ {
			if i < users {
				assert.GreaterOrEqual(t, len(lists[i]), len(lists[i-1]), "round %d frame %d", round, i)
			} else {
				assert.LessOrEqual(t, len(lists[i]), len(lists[i-1]), "round %d frame %d", round, i)
			}
		}
		g.Close()
	}
}

func TestCloseEndsConnections(t *testing.T) {
	g := NewGateway(GatewayConf{RebroadcastDelay: time.Hour})
	a := newFakePeer("c1")
	g.OnConnect(a, Handshake{UserID: "u1"})

	g.Close()

	assert.True(t, a.isClosed())
	assert.Empty(t, g.OnlineUsers())
	assert.Zero(t, g.Connections())

	late := newFakePeer("c2")
	g.OnConnect(late, Handshake{UserID: "u2"})
	assert.True(t, late.isClosed(), "connections after Close are rejected")
	assert.Empty(t, g.OnlineUsers())
}

func TestMessageValidate(t *testing.T) {
	m := testMessage("u1", "u2")
	assert.NoError(t, m.Validate())

	m.ReceiverID = ""
	err := m.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrArgs)
}

func TestNewMessageFrameOmitsUnsetTimes(t *testing.T) {
	frame, err := NewMessageEvent(Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Text: "hi"}).Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(frame), "createdAt")
	assert.NotContains(t, string(frame), "updatedAt")
	assert.NotContains(t, string(frame), "0001-01-01")

	m := testMessage("u1", "u2")
	frame, err = NewMessageEvent(m).Encode()
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"createdAt":"2024-05-01T12:00:00Z"`)
	assert.NotContains(t, string(frame), "updatedAt")

	var back struct {
		Data struct {
			NewMessage Message `json:"newMessage"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &back))
	assert.True(t, back.Data.NewMessage.CreatedAt.Equal(m.CreatedAt))
	assert.Equal(t, m.ID, back.Data.NewMessage.ID)
}
