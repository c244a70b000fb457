// Package logging is a process-wide leveled logger backed by zap.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "json"
	sugar  = build(format)
)

func build(format string) *zap.SugaredLogger {
	encoding := "json"
	if format == "console" || format == "text" {
		encoding = "console"
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = encoding
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// SetLevel sets the global logging level from a string. Unknown values
// fall back to info.
func SetLevel(l string) {
	switch strings.ToLower(l) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
	Info("Log level set to: %s", level.Level())
}

// SetFormat switches between "json" and "console" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if f == format {
		return
	}
	_ = sugar.Sync()
	format = f
	sugar = build(f)
}

// Level returns the current level name.
func Level() string {
	return level.Level().String()
}

// Sync flushes buffered entries.
func Sync() {
	logger().Sync() //nolint:errcheck
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug logs a message at DEBUG level
func Debug(format string, v ...interface{}) {
	logger().Debugf(format, v...)
}

// Info logs a message at INFO level
func Info(format string, v ...interface{}) {
	logger().Infof(format, v...)
}

// Warn logs a message at WARN level
func Warn(format string, v ...interface{}) {
	logger().Warnf(format, v...)
}

// Error logs a message at ERROR level
func Error(format string, v ...interface{}) {
	logger().Errorf(format, v...)
}

// Fatal logs a message and exits the process.
func Fatal(format string, v ...interface{}) {
	logger().Fatalf(format, v...)
}

// Debugw logs a message with structured key/value pairs at DEBUG level.
func Debugw(msg string, keysAndValues ...interface{}) {
	logger().Debugw(msg, keysAndValues...)
}

// Infow logs a message with structured key/value pairs at INFO level.
func Infow(msg string, keysAndValues ...interface{}) {
	logger().Infow(msg, keysAndValues...)
}

// Errorw logs a message with structured key/value pairs at ERROR level.
func Errorw(msg string, keysAndValues ...interface{}) {
	logger().Errorw(msg, keysAndValues...)
}

// swap replaces the logger, returning a func that restores the old one.
func swap(l *zap.SugaredLogger) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	old := sugar
	sugar = l
	return func() {
		mu.Lock()
		defer mu.Unlock()
		sugar = old
	}
}
