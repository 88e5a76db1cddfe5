// Package logger is the process-wide structured logger with a service prefix.
// It wraps zap and keeps a small printf-style API so call sites stay one-liners.
// Function timings can be logged with DeferLogDuration.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// slowThreshold: at info level only calls slower than this are timed.
const slowThreshold = 100 * time.Millisecond

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	root   *zap.Logger
	sugar  *zap.SugaredLogger
	prefix string
	once   sync.Once
)

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initDefault() {
	level.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v, falling back to nop\n", err)
		l = zap.NewNop()
	}
	mu.Lock()
	if root == nil {
		root = l
		sugar = named(l)
	}
	mu.Unlock()
}

func named(l *zap.Logger) *zap.SugaredLogger {
	if prefix == "" {
		return l.Sugar()
	}
	return l.Named(prefix).Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(initDefault)
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Use replaces the underlying zap logger (tests use zaptest/observer).
func Use(l *zap.Logger) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	root = l.WithOptions(zap.AddCallerSkip(1))
	sugar = named(root)
}

// SetPrefix names the logger after the service (for example "api").
func SetPrefix(p string) {
	once.Do(initDefault)
	mu.Lock()
	defer mu.Unlock()
	prefix = p
	sugar = named(root)
}

// SetLevel changes the level of the default logger at runtime.
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

// Sync flushes buffered entries. Call it before exit.
func Sync() {
	_ = get().Sync()
}

func Info(v ...any)                  { get().Info(v...) }
func Infof(format string, v ...any)  { get().Infof(format, v...) }
func Debugf(format string, v ...any) { get().Debugf(format, v...) }
func Error(v ...any)                 { get().Error(v...) }
func Errorf(format string, v ...any) { get().Errorf(format, v...) }

// LogDuration logs fn with its elapsed time in milliseconds.
// At info level only calls slower than 100ms are logged; at debug level all of them.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	l := get()
	if elapsed < slowThreshold && !l.Desugar().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Infow("timing", "fn", fn, "duration_ms", elapsed.Milliseconds())
}

// DeferLogDuration is meant for defer: defer logger.DeferLogDuration("store.Put", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
