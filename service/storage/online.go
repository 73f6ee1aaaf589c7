package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPGateway/logger"
	"PPGateway/service/chat"
	"PPGateway/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ===== 配置 =====
type PresenceConfig struct {
	NodeID  string        // 节点ID（参与key命名）
	TTL     time.Duration // presence 键TTL，靠 Refresh 续期
	Channel string        // Pub/Sub频道名，空=不广播
}

// ===== Key 构造 =====

const (
	presencePrefix = "im:presence:"
	nodeSetPrefix  = "im:online:"
	valueSep       = "|"
)

// presence key: im:presence:<user>，value=<node>|<conn>
func PresenceKey(userID string) string { return presencePrefix + userID }

// 节点在线集合：im:online:<node>，member=userID
func NodeSetKey(nodeID string) string { return nodeSetPrefix + nodeID }

func PresenceValue(nodeID, connID string) string { return nodeID + valueSep + connID }

// ParsePresenceValue splits "<node>|<conn>".
func ParsePresenceValue(v string) (nodeID, connID string, ok bool) {
	i := strings.Index(v, valueSep)
	if i <= 0 || i == len(v)-1 {
		return "", "", false
	}
	return v[:i], v[i+1:], true
}

// ===== Lua 脚本 =====

// 上线：写 presence 键 + 加入节点集合
// KEYS[1] = presence key
// KEYS[2] = node set key
// ARGV[1] = value (<node>|<conn>)
// ARGV[2] = ttlSeconds
// ARGV[3] = userID
const luaOnline = `
local ttl = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "EX", ttl)
redis.call("SADD", KEYS[2], ARGV[3])
redis.call("EXPIRE", KEYS[2], ttl * 2)
return 1
`

// 下线：只有 presence 键仍指向本连接才删除（与内存 registry 同样的重连保护）
// KEYS[1] = presence key
// KEYS[2] = node set key
// ARGV[1] = expected value (<node>|<conn>)
// ARGV[2] = userID
// 返回：1=删除；0=键已被新连接覆盖或不存在（幂等）
const luaOffline = `
local cur = redis.call("GET", KEYS[1])
if cur ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[2])
return 1
`

// 续期：只有 presence 键仍指向本连接才续期并补回节点集合，避免把已下线用户复活
// KEYS[1] = presence key
// KEYS[2] = node set key
// ARGV[1] = expected value (<node>|<conn>)
// ARGV[2] = ttlMillis
// ARGV[3] = userID
// 返回：1=续期；0=键已不属于本连接
const luaRenew = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[2])
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("SADD", KEYS[2], ARGV[3])
redis.call("PEXPIRE", KEYS[2], ttl * 2)
return 1
`

// 清理本节点残留（进程重启后旧连接已不存在）
// KEYS[1] = node set key
// ARGV[1] = presence key prefix
// ARGV[2] = value prefix (<node>|)
// 返回：被删除的 presence 键数量
const luaClearNode = `
local users = redis.call("SMEMBERS", KEYS[1])
local n = 0
local plen = string.len(ARGV[2])
for _, u in ipairs(users) do
  local k = ARGV[1] .. u
  local v = redis.call("GET", k)
  if v and string.sub(v, 1, plen) == ARGV[2] then
    redis.call("DEL", k)
    n = n + 1
  end
end
redis.call("DEL", KEYS[1])
return n
`

// PresenceStore mirrors this node's registry into Redis so other processes
// can answer "is user X online and where".
type PresenceStore struct {
	rdb  redis.Cmdable
	conf PresenceConfig

	online    *redis.Script
	offline   *redis.Script
	renew     *redis.Script
	clearNode *redis.Script
}

func NewPresenceStore(rdb redis.Cmdable, conf PresenceConfig) *PresenceStore {
	if conf.TTL <= 0 {
		conf.TTL = 2 * time.Hour
	}
	return &PresenceStore{
		rdb:       rdb,
		conf:      conf,
		online:    redis.NewScript(luaOnline),
		offline:   redis.NewScript(luaOffline),
		renew:     redis.NewScript(luaRenew),
		clearNode: redis.NewScript(luaClearNode),
	}
}

// Online records userID on connID of this node and renews the TTL.
func (s *PresenceStore) Online(ctx context.Context, userID, connID string) error {
	err := s.online.Run(ctx, s.rdb,
		[]string{PresenceKey(userID), NodeSetKey(s.conf.NodeID)},
		PresenceValue(s.conf.NodeID, connID),
		int64(s.conf.TTL/time.Second),
		userID,
	).Err()
	if err != nil {
		return errs.WrapMsg(err, "presence online", "user", userID, "conn", connID)
	}
	s.publish(ctx, FormatEvent(EventOnline, userID, connID))
	return nil
}

// Offline removes userID only while Redis still points at connID.
func (s *PresenceStore) Offline(ctx context.Context, userID, connID string) (bool, error) {
	rc, err := s.offline.Run(ctx, s.rdb,
		[]string{PresenceKey(userID), NodeSetKey(s.conf.NodeID)},
		PresenceValue(s.conf.NodeID, connID),
		userID,
	).Int64()
	if err != nil {
		return false, errs.WrapMsg(err, "presence offline", "user", userID, "conn", connID)
	}
	ok := rc == 1
	if ok {
		s.publish(ctx, FormatEvent(EventOffline, userID, connID))
	}
	return ok, nil
}

// Lookup reports the node and connection userID is attached to.
func (s *PresenceStore) Lookup(ctx context.Context, userID string) (nodeID, connID string, online bool, err error) {
	val, err := s.rdb.Get(ctx, PresenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, errs.WrapMsg(err, "presence lookup", "user", userID)
	}
	nodeID, connID, ok := ParsePresenceValue(val)
	if !ok {
		return "", "", false, errs.ErrDecode.WrapMsg("bad presence value", "user", userID, "value", val)
	}
	return nodeID, connID, true, nil
}

// OnlineUsers lists users registered on nodeID; empty means this node.
func (s *PresenceStore) OnlineUsers(ctx context.Context, nodeID string) ([]string, error) {
	if nodeID == "" {
		nodeID = s.conf.NodeID
	}
	users, err := s.rdb.SMembers(ctx, NodeSetKey(nodeID)).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence members", "node", nodeID)
	}
	return users, nil
}

// ClearNode drops whatever a previous run of this node left behind.
func (s *PresenceStore) ClearNode(ctx context.Context) (int64, error) {
	n, err := s.clearNode.Run(ctx, s.rdb,
		[]string{NodeSetKey(s.conf.NodeID)},
		presencePrefix,
		s.conf.NodeID+valueSep,
	).Int64()
	if err != nil {
		return 0, errs.WrapMsg(err, "presence clear node", "node", s.conf.NodeID)
	}
	return n, nil
}

// Refresh renews the TTL of every given user -> conn entry in one pipeline.
// Entries whose key was removed or taken over since the caller copied them
// are skipped. Returns how many entries were renewed.
func (s *PresenceStore) Refresh(ctx context.Context, entries map[string]string) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	ttl := s.conf.TTL.Milliseconds()
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.Cmd, 0, len(entries))
	for user, conn := range entries {
		cmds = append(cmds, s.renew.Eval(ctx, pipe,
			[]string{PresenceKey(user), NodeSetKey(s.conf.NodeID)},
			PresenceValue(s.conf.NodeID, conn),
			ttl,
			user,
		))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errs.WrapMsg(err, "presence refresh", "users", len(entries))
	}
	renewed := 0
	for _, cmd := range cmds {
		if n, _ := cmd.Int64(); n == 1 {
			renewed++
		}
	}
	return renewed, nil
}

// OnPresence lets the store run as a gateway presence hook.
func (s *PresenceStore) OnPresence(ctx context.Context, c chat.PresenceChange) error {
	if c.Online {
		return s.Online(ctx, c.UserID, c.ConnID)
	}
	_, err := s.Offline(ctx, c.UserID, c.ConnID)
	return err
}

func (s *PresenceStore) publish(ctx context.Context, payload string) {
	if s.conf.Channel == "" {
		return
	}
	if err := s.rdb.Publish(ctx, s.conf.Channel, payload).Err(); err != nil {
		logger.Warn("[presence] publish failed", zap.String("channel", s.conf.Channel), zap.Error(err))
	}
}
