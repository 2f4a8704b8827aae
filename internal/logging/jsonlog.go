package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = mustProduction()
)

func mustProduction() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLogger replaces the backing logger and returns the previous one.
func SetLogger(l *zap.Logger) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	prev := logger
	logger = l
	return prev
}

// L returns the backing zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Log(level, msg string, fields map[string]any) {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	l := L()
	switch level {
	case "debug":
		l.Debug(msg, zf...)
	case "warn":
		l.Warn(msg, zf...)
	case "error":
		l.Error(msg, zf...)
	default:
		l.Info(msg, zf...)
	}
}

func Debug(msg string, fields map[string]any) { Log("debug", msg, fields) }
func Info(msg string, fields map[string]any)  { Log("info", msg, fields) }
func Warn(msg string, fields map[string]any)  { Log("warn", msg, fields) }
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }

// Sync flushes buffered entries.
func Sync() { _ = L().Sync() }
