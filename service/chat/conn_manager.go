package chat

import (
	"sync"
	"time"
)

// ===== 数据结构 =====

// session is one open connection known to the gateway, registered or not.
type session struct {
	peer        Peer
	userID      string // "" => anonymous, never registered
	remote      string
	connectedAt time.Time
	rebroadcast *time.Timer // 延迟补发 presence，连接关闭时取消
}

// ConnManager indexes every open connection by its id. It is the audience
// of presence broadcasts and resolves connection ids to peers on delivery.
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*session // conn_id -> session
	closed bool
	clock  func() time.Time
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		byConn: make(map[string]*session),
		clock:  time.Now,
	}
}

// ===== 增删查 =====

// add stores s unless the manager is closed or the id is taken.
func (m *ConnManager) add(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, exists := m.byConn[s.peer.ID()]; exists {
		return false
	}
	s.connectedAt = m.clock()
	m.byConn[s.peer.ID()] = s
	return true
}

// remove detaches the session and stops its pending timer.
func (m *ConnManager) remove(connID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	delete(m.byConn, connID)
	if s.rebroadcast != nil {
		s.rebroadcast.Stop()
		s.rebroadcast = nil
	}
	return s
}

// armTimer attaches t to the session; if the session is already gone the
// timer is stopped instead.
func (m *ConnManager) armTimer(connID string, t *time.Timer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byConn[connID]
	if !ok {
		t.Stop()
		return false
	}
	if s.rebroadcast != nil {
		s.rebroadcast.Stop()
	}
	s.rebroadcast = t
	return true
}

func (m *ConnManager) has(connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byConn[connID]
	return ok
}

func (m *ConnManager) peer(connID string) (Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	return s.peer, true
}

// peers returns a copy of all open peers.
func (m *ConnManager) peers() []Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Peer, 0, len(m.byConn))
	for _, s := range m.byConn {
		out = append(out, s.peer)
	}
	return out
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

// ===== 关闭 =====

// closeAll marks the manager closed and hands back every session so the
// caller can close peers outside the lock.
func (m *ConnManager) closeAll() []*session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	out := make([]*session, 0, len(m.byConn))
	for id, s := range m.byConn {
		if s.rebroadcast != nil {
			s.rebroadcast.Stop()
			s.rebroadcast = nil
		}
		out = append(out, s)
		delete(m.byConn, id)
	}
	return out
}
