// Package logging builds the *zap.Logger every component receives by
// constructor injection, gated by config.Config.LogLevel, in the style of
// scionproto-scion's pkg/log package (a zap.Config driven by a parsed
// level rather than the package-global logger munonun-Web4's own code
// prints through with fmt.Fprintf).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level ("debug",
// "info", "warn", "error"; unrecognised values fall back to "info").
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}
