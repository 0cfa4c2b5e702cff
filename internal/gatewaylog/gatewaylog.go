// Package gatewaylog wraps *zap.Logger with the structured fields every
// gateway log line carries: provider, model, request id.
package gatewaylog

import (
	"go.uber.org/zap"
)

// Logger wraps a *zap.Logger with gateway-specific field helpers.
type Logger struct {
	*zap.Logger
}

// New wraps base, defaulting to a no-op logger if base is nil.
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{Logger: base}
}

// NewDevelopment returns a Logger configured for local/dev use (colorized,
// human-readable, debug level enabled).
func NewDevelopment() (*Logger, error) {
	base, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(base), nil
}

// NewProduction returns a Logger configured for production use (JSON,
// info level and above).
func NewProduction() (*Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(base), nil
}

// WithProvider attaches the dispatching provider id to every subsequent
// log line.
func (l *Logger) WithProvider(providerID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("provider", providerID))}
}

// WithModel attaches the requested model name.
func (l *Logger) WithModel(model string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("model", model))}
}

// WithRequestID attaches a per-request correlation id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("request_id", requestID))}
}

// DebugUnknownSSEEvent logs an unrecognized upstream SSE event type at
// debug level, per the "unknown event type -> Ignore (debug log)" rule.
func (l *Logger) DebugUnknownSSEEvent(providerID, eventType string) {
	l.Debug("ignoring unknown sse event type",
		zap.String("provider", providerID),
		zap.String("event_type", eventType),
	)
}

// Sync flushes any buffered log entries. Safe to call even when the
// underlying logger writes straight to a terminal (os.Stderr's Sync error
// is common there and intentionally ignored by callers).
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
