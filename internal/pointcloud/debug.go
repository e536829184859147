package pointcloud

import (
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu          sync.RWMutex
	logger      = zap.NewNop()
	opsLogger   = logger.Sugar()
	diagLogger  = logger.Sugar()
	traceLogger = logger.Sugar()
)

// Logger returns the package logger. It is a no-op logger until
// SetLogger is called.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger configures all three logging streams at once.
// Pass nil to silence every stream.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
	opsLogger = l.Named("ops").Sugar()
	diagLogger = l.Named("diag").Sugar()
	traceLogger = l.Named("trace").Sugar()
}

// NewLogger builds a JSON logger writing to w. Ops messages are always
// written; verbose enables the diag and trace streams.
func NewLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// Opsf logs to the ops stream (actionable warnings, errors, lifecycle events).
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	l.Infof(format, args...)
}

// Diagf logs to the diag stream (day-to-day diagnostics, layer and polygon summaries).
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	l.Debugf(format, args...)
}

// Tracef logs to the trace stream (per-chunk and per-polygon telemetry).
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	l.Debugf(format, args...)
}
