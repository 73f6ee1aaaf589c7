package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
node_id: gw-test
log:
  level: debug
server:
  addr: ":9090"
  allowed_origins:
    - https://chat.example.com
gateway:
  rebroadcast_delay: 250ms
  send_queue: 16
nats:
  enabled: true
  servers:
    - nats://10.0.0.1:4222
    - nats://10.0.0.2:4222
  mode: js_push
kafka:
  topics: [a, b]
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, "gateway_01", cfg.NodeID)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, "userId", cfg.Server.UserQueryKey)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.RebroadcastDelay)
	assert.Equal(t, 256, cfg.Gateway.SendQueue)
	assert.Equal(t, 60*time.Second, cfg.Gateway.PongWait)
	assert.Equal(t, 54*time.Second, cfg.Gateway.PingPeriod)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Nats.Enabled)
	assert.Equal(t, "core", cfg.Nats.Mode)
	assert.Equal(t, []string{"im.message.persisted"}, cfg.Kafka.Topics)
	assert.Equal(t, "messages", cfg.Mongo.Collection)
	assert.Equal(t, "message_persisted", cfg.Postgres.Channel)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(New(writeTestConfig(t, testYAML)))
	require.NoError(t, err)

	assert.Equal(t, "gw-test", cfg.NodeID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Gateway.RebroadcastDelay)
	assert.Equal(t, 16, cfg.Gateway.SendQueue)
	assert.True(t, cfg.Nats.Enabled)
	assert.Equal(t, []string{"nats://10.0.0.1:4222", "nats://10.0.0.2:4222"}, cfg.Nats.Servers)
	assert.Equal(t, "js_push", cfg.Nats.Mode)
	assert.Equal(t, []string{"a", "b"}, cfg.Kafka.Topics)

	// untouched sections keep defaults
	assert.Equal(t, "im:presence:events", cfg.Redis.Channel)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PPGW_SERVER_ADDR", ":7070")
	t.Setenv("PPGW_GATEWAY_REBROADCAST_DELAY", "1s")
	t.Setenv("PPGW_REDIS_ENABLED", "true")

	cfg, err := Load(New(writeTestConfig(t, testYAML)))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Gateway.RebroadcastDelay)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestNormPingPeriod(t *testing.T) {
	cfg, err := Load(New(writeTestConfig(t, "gateway:\n  pong_wait: 10s\n  ping_period: 30s\n")))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Gateway.PongWait)
	assert.Equal(t, 9*time.Second, cfg.Gateway.PingPeriod)
}
