package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 供本包快捷方法使用，已跳过一层调用栈；直接调用 Log 时 caller 会偏上一层
var (
	Log   *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

// Config controls level, encoding and the optional rotating file sink.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console | json
	File       string `mapstructure:"file"`   // empty => stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func init() {
	Log = newLogger(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(true)),
		zapcore.AddSync(os.Stdout),
		level,
	))
}

func newLogger(core zapcore.Core) *zap.Logger {
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func encoderConfig(color bool) zapcore.EncoderConfig {
	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		CallerKey:    "caller",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	if color {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色等级
	}
	return encCfg
}

// Setup rebuilds Log from cfg. Safe to call more than once.
func Setup(cfg Config) {
	SetLevel(cfg.Level)

	stdout := zapcore.NewConsoleEncoder(encoderConfig(true))
	if strings.EqualFold(cfg.Format, "json") {
		stdout = zapcore.NewJSONEncoder(encoderConfig(false))
	}
	cores := []zapcore.Core{zapcore.NewCore(stdout, zapcore.AddSync(os.Stdout), level)}

	if cfg.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 7),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig(false)),
			zapcore.AddSync(rotate),
			level,
		))
	}

	Log = newLogger(zapcore.NewTee(cores...))
}

// SetLevel changes the level of every core built by this package.
// Unknown names leave the level untouched.
func SetLevel(name string) {
	if name == "" {
		return
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		Log.Warn("unknown log level", zap.String("level", name))
		return
	}
	level.SetLevel(l)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// 快捷方法
func Info(msg string, fields ...zap.Field) { Log.Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	Log.Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field)  { Log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	Log.Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }

func Sync() { _ = Log.Sync() }
