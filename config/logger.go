package config

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide structured logger. It is a no-op until
// InitLogger is called, which keeps package-level collection setup and
// tests quiet.
var Logger = zap.NewNop()

// InitLogger builds the production JSON logger at the given level.
// An empty or invalid level falls back to info.
func InitLogger(level string) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return
	}
	Logger = l
}
