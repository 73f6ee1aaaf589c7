package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("debug")

	SetLevel("warn")
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	SetLevel("nonsense")
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	SetLevel("")
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}

func TestSetupWritesRotatingFile(t *testing.T) {
	prev := Log
	defer func() { Log = prev; SetLevel("debug") }()

	path := filepath.Join(t.TempDir(), "gw.log")
	Setup(Config{Level: "info", Format: "json", File: path})
	Info("hello", zap.String("k", "v"))
	Debug("hidden")
	Errorf("failed %d", 3)
	Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.Contains(t, string(b), `"k":"v"`)
	assert.Contains(t, string(b), "failed 3")
	assert.NotContains(t, string(b), "hidden")
}

func TestShortcutsReportCallerSite(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	core, logs := observer.New(zapcore.DebugLevel)
	Log = newLogger(core)
	Info("a")
	Infof("b %d", 1)
	Error("c")

	require.Equal(t, 3, logs.Len())
	for _, e := range logs.All() {
		require.True(t, e.Caller.Defined, e.Message)
		assert.Equal(t, "log_test.go", filepath.Base(e.Caller.File), e.Message)
	}
}
