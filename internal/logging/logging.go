// Package logging builds the zap logger kittyd runs on.
//
// Output always goes to stdout in JSON or console form; when an
// OpenTelemetry log provider is available the same entries are bridged
// through otelzap so they carry trace correlation into the collector.
package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level and format for the process logger.
type Config struct {
	// Level is debug, info, warn, or error.
	Level string
	// Format is json or console.
	Format string
	// Service names the otelzap bridge scope.
	Service string
	// ToStderr moves log output off stdout. MCP stdio mode needs
	// stdout clean for the protocol stream.
	ToStderr bool
}

// New builds a logger. provider may be nil, which skips the
// OpenTelemetry bridge.
func New(cfg Config, provider log.LoggerProvider) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := os.Stdout
	if cfg.ToStderr {
		out = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(out), level),
	}
	if provider != nil {
		service := cfg.Service
		if service == "" {
			service = "kittyd"
		}
		cores = append(cores, otelzap.NewCore(service, otelzap.WithLoggerProvider(provider)))
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Sync flushes the logger, swallowing the errors stdout reports on
// Linux when it is a terminal or pipe.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
