// Package logger provides a zap-backed logging facade for the coordination service.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.SugaredLogger
	mu  sync.RWMutex
)

// Initialize sets up the global logger. When debug is true the logger emits
// human-readable console output at debug level; otherwise it emits JSON at
// info level. Safe to call multiple times; the last call wins.
func Initialize(debug bool) {
	mu.Lock()
	defer mu.Unlock()

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Building the default configs cannot realistically fail, but do not
		// run without a logger if it somehow does.
		zl = zap.NewNop()
	}
	log = zl.Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	Initialize(false)
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a message at debug level.
func Debug(args ...any) { get().Debug(args...) }

// Info logs a message at info level.
func Info(args ...any) { get().Info(args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { get().Warn(args...) }

// Error logs a message at error level.
func Error(args ...any) { get().Error(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { get().Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { get().Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { get().Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) {
	get().Fatalf(format, args...)
}

// Infow logs a message with structured key-value pairs at info level.
func Infow(msg string, keysAndValues ...any) { get().Infow(msg, keysAndValues...) }

// Warnw logs a message with structured key-value pairs at warn level.
func Warnw(msg string, keysAndValues ...any) { get().Warnw(msg, keysAndValues...) }

// Errorw logs a message with structured key-value pairs at error level.
func Errorw(msg string, keysAndValues ...any) { get().Errorw(msg, keysAndValues...) }

// Debugw logs a message with structured key-value pairs at debug level.
func Debugw(msg string, keysAndValues ...any) { get().Debugw(msg, keysAndValues...) }

// Sync flushes any buffered log entries.
func Sync() error {
	return get().Sync()
}
