package util

import (
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logr's V(). V(DEBUG) maps to zap's debug level.
const (
	DEBUG = 1
	TRACE = 2
)

// NewLogger builds a console logger at the named level: trace, debug, info, warn or error.
func NewLogger(level string) (logr.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), errors.Wrap(err, "building zap logger")
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger returns a trace-level logger writing to w, typically GinkgoWriter.
func NewTestLogger(w io.Writer) logr.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.Level(-TRACE))
	return zapr.NewLogger(zap.New(core))
}

func parseLevel(level string) (zapcore.Level, error) {
	if strings.EqualFold(level, "trace") {
		return zapcore.Level(-TRACE), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return lvl, errors.Wrapf(err, "invalid log level %q", level)
	}
	return lvl, nil
}
