// Package logging builds the zap-backed logr.Logger used across odomctl.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logr.Logger.V.
const (
	DEFAULT = 0
	DEBUG   = 1
	TRACE   = 2
)

// ParseLevel maps a level name onto a zap level. "debug" enables DEBUG
// verbosity, "trace" enables TRACE.
func ParseLevel(name string) (zapcore.Level, error) {
	switch name {
	case "trace":
		return zapcore.Level(-1 * TRACE), nil
	case "debug":
		return zapcore.Level(-1 * DEBUG), nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", name)
}

// New returns a logger writing to stderr. Development mode uses the
// human-readable console encoder; otherwise output is JSON.
func New(level string, development bool) (logr.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}

	cfg := uberzap.NewProductionConfig()
	if development {
		cfg = uberzap.NewDevelopmentConfig()
	}
	cfg.Level = uberzap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil

	z, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), fmt.Errorf("logging: building zap logger: %w", err)
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger returns a development logger that prints everything.
func NewTestLogger() logr.Logger {
	cfg := uberzap.NewDevelopmentConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * TRACE))
	z, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(z)
}
