package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext carries request-scoped fields that the *Ctx functions prepend
// to every record.
type LogContext struct {
	TraceID   string
	SpanID    string
	RequestID string // HTTP request id from the control API
	Channel   string // accel channel id
	Module    string // accel module handling the operation
	Bdev      string // block device name
	StartTime time.Time
}

// NewLogContext returns a LogContext stamped with the current time.
func NewLogContext() *LogContext {
	return &LogContext{StartTime: time.Now()}
}

// WithContext stores lc in ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// Clone returns a shallow copy.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithTrace returns a copy with trace ids set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID, c.SpanID = traceID, spanID
	}
	return c
}

// WithModule returns a copy with the module set.
func (lc *LogContext) WithModule(module string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Module = module
	}
	return c
}

// WithBdev returns a copy with the block device set.
func (lc *LogContext) WithBdev(name string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Bdev = name
	}
	return c
}

// DurationMs returns milliseconds since StartTime, or 0 when unset.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
