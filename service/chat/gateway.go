package chat

import (
	"errors"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// ===== 配置 =====

type GatewayConf struct {
	// RebroadcastDelay is the pause before the second online-users
	// broadcast that follows a registration. Clients often attach their
	// event listener after the socket opens and miss the first one; the
	// repeat is a heuristic, not a delivery guarantee. <=0 disables it.
	RebroadcastDelay time.Duration
	HookTimeout      time.Duration
}

type Option func(*Gateway)

func WithMetrics(m Metrics) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithFanout hands presence broadcasts to a worker pool instead of
// emitting from the caller's goroutine.
func WithFanout(f *Fanout) Option {
	return func(g *Gateway) { g.fanout = f }
}

func WithPresenceHooks(hooks ...PresenceHook) Option {
	return func(g *Gateway) { g.hookList = append(g.hookList, hooks...) }
}

// Gateway owns the registry, tracks connection lifecycles and routes
// outbound events to live connections.
type Gateway struct {
	conf    GatewayConf
	reg     *Registry
	conns   *ConnManager
	fanout  *Fanout
	metrics Metrics

	// bmu 串行化 快照+下发，保证每个连接看到的在线列表按时间先后到达
	bmu sync.Mutex

	hookList []PresenceHook
	hooks    *hookRunner
}

func NewGateway(conf GatewayConf, opts ...Option) *Gateway {
	g := &Gateway{
		conf:    conf,
		reg:     NewRegistry(),
		conns:   NewConnManager(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if len(g.hookList) > 0 {
		g.hooks = newHookRunner(g.hookList, conf.HookTimeout)
	}
	return g
}

func (g *Gateway) Registry() *Registry { return g.reg }

// ===== 连接生命周期 =====

// OnConnect admits p. Without a user id the connection stays anonymous: it
// hears presence broadcasts but is never a delivery target.
func (g *Gateway) OnConnect(p Peer, hs Handshake) {
	s := &session{peer: p, userID: hs.UserID, remote: hs.Remote}
	if !g.conns.add(s) {
		logger.Warn("[gateway] reject connection", zap.String("conn", p.ID()), zap.String("user", hs.UserID))
		_ = p.Close()
		return
	}
	g.metrics.ConnOpened()

	if hs.UserID == "" {
		logger.Debug("[gateway] anonymous connection", zap.String("conn", p.ID()), zap.String("remote", hs.Remote))
		return
	}

	g.reg.Register(hs.UserID, p.ID())
	logger.Info("[gateway] user online", zap.String("user", hs.UserID), zap.String("conn", p.ID()))

	snapshot := g.BroadcastPresence()
	g.notify(PresenceChange{UserID: hs.UserID, ConnID: p.ID(), Online: true, Snapshot: snapshot})
	g.scheduleRebroadcast(p.ID())
}

func (g *Gateway) scheduleRebroadcast(connID string) {
	if g.conf.RebroadcastDelay <= 0 {
		return
	}
	t := time.AfterFunc(g.conf.RebroadcastDelay, func() {
		// Stop() may lose the race with firing; the session check covers it.
		if !g.conns.has(connID) {
			return
		}
		g.BroadcastPresence()
	})
	g.conns.armTimer(connID, t)
}

// OnDisconnect retires the connection. The user is unregistered only while
// the registry still points at this connection; the remaining connections
// always get a fresh online-users list.
func (g *Gateway) OnDisconnect(connID string) {
	s := g.conns.remove(connID)
	if s == nil {
		return
	}
	g.metrics.ConnClosed()
	if s.userID == "" {
		return
	}

	removed := g.reg.Unregister(s.userID, connID)
	if removed {
		logger.Info("[gateway] user offline", zap.String("user", s.userID), zap.String("conn", connID))
	} else {
		logger.Debug("[gateway] stale disconnect, newer connection kept",
			zap.String("user", s.userID), zap.String("conn", connID))
	}

	snapshot := g.BroadcastPresence()
	if removed {
		g.notify(PresenceChange{UserID: s.userID, ConnID: connID, Online: false, Snapshot: snapshot})
	}
}

// BroadcastPresence pushes the current online users to every open
// connection and returns the list that was sent. Broadcasts never
// interleave: a peer always ends on the latest snapshot.
func (g *Gateway) BroadcastPresence() []string {
	g.bmu.Lock()
	defer g.bmu.Unlock()

	snapshot := g.reg.Snapshot()
	g.metrics.OnlineUsers(len(snapshot))

	frame, err := OnlineUsersEvent(snapshot).Encode()
	if err != nil {
		logger.Error("[gateway] encode presence", zap.Error(err))
		return snapshot
	}
	peers := g.conns.peers()
	g.metrics.PresenceBroadcast(len(peers))

	if g.fanout != nil && g.fanout.Broadcast(peers, frame) {
		return snapshot
	}
	for _, p := range peers {
		if err := p.Emit(frame); err != nil {
			logger.Debug("[gateway] presence emit failed", zap.String("conn", p.ID()), zap.Error(err))
		}
	}
	return snapshot
}

// ===== 投递 =====

// DeliverNewMessage sends one newMessage event to the sender's and to the
// receiver's current connection, whichever of them is registered. Nothing
// is queued for offline users. Returns the number of successful emits.
func (g *Gateway) DeliverNewMessage(msg Message) int {
	frame, err := NewMessageEvent(msg).Encode()
	if err != nil {
		logger.Error("[gateway] encode message", zap.String("id", msg.ID), zap.Error(err))
		return 0
	}

	targets := []string{msg.ReceiverID, msg.SenderID}
	if msg.SenderID == msg.ReceiverID {
		targets = targets[:1]
	}

	delivered := 0
	for _, user := range targets {
		if user == "" {
			continue
		}
		if g.deliverTo(user, frame, msg.ID) {
			delivered++
		}
	}
	return delivered
}

func (g *Gateway) deliverTo(user string, frame []byte, msgID string) bool {
	connID, ok := g.reg.Lookup(user)
	if !ok {
		g.metrics.Delivery(DeliveryMissed)
		return false
	}
	p, ok := g.conns.peer(connID)
	if !ok {
		g.metrics.Delivery(DeliveryMissed)
		return false
	}
	if err := p.Emit(frame); err != nil {
		g.metrics.Delivery(DeliveryDropped)
		level := logger.Debug
		if errors.Is(err, errs.ErrSendQueueFull) {
			level = logger.Warn
		}
		level("[gateway] newMessage not delivered",
			zap.String("user", user), zap.String("conn", connID), zap.String("msg", msgID), zap.Error(err))
		return false
	}
	g.metrics.Delivery(DeliveryDelivered)
	return true
}

// OnlineUsers answers the "who is online" query.
func (g *Gateway) OnlineUsers() []string {
	return g.reg.Snapshot()
}

// Connections reports how many connections are open, anonymous included.
func (g *Gateway) Connections() int {
	return g.conns.Len()
}

func (g *Gateway) notify(c PresenceChange) {
	if g.hooks == nil {
		return
	}
	c.At = time.Now()
	g.hooks.push(c)
}

// Close ends every connection and stops background work. Further
// OnConnect calls are rejected.
func (g *Gateway) Close() {
	for _, s := range g.conns.closeAll() {
		if s.userID != "" {
			g.reg.Unregister(s.userID, s.peer.ID())
		}
		g.metrics.ConnClosed()
		_ = s.peer.Close()
	}
	g.metrics.OnlineUsers(g.reg.Len())
	if g.fanout != nil {
		g.fanout.Close()
	}
	if g.hooks != nil {
		g.hooks.close()
	}
}
