// Package telemetry provides structured render/compile logging and audit
// events, generalizing deicod-gojinja's runtime/auditing.go
// (AuditLevel/AuditEventType/AuditEvent/AuditLogger/FileAuditLogger) onto
// github.com/rs/zerolog instead of its hand-rolled JSON-line FileAuditLogger,
// and stamping each event with a github.com/google/uuid correlation ID so
// concurrent renders on a shared Environment can be told apart in the log
// stream.
package telemetry

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType enumerates the audit events spec.md's sandbox/security hooks
// and render pipeline emit, matching gojinja's AuditEventType roster.
type EventType string

const (
	EventSecurityViolation EventType = "security_violation"
	EventTemplateAccess    EventType = "template_access"
	EventFilterAccess      EventType = "filter_access"
	EventAttributeAccess   EventType = "attribute_access"
	EventRenderStart       EventType = "render_start"
	EventRenderEnd         EventType = "render_end"
	EventRecursionLimit    EventType = "recursion_limit_exceeded"
	EventCacheHit          EventType = "cache_hit"
	EventCacheMiss         EventType = "cache_miss"
)

// Logger wraps a zerolog.Logger with kiln-specific event helpers. The zero
// value is a disabled logger (writes nowhere), matching gojinja's
// AuditLevelOff default so telemetry never fires unless an Environment opts
// in via WithLogger.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing JSON lines to w at the given minimum level.
// Pass os.Stderr for human-readable operation; wrap w in
// zerolog.ConsoleWriter{Out: w} at the call site for pretty-printed output
// during development.
func New(w io.Writer, level zerolog.Level) Logger {
	if w == nil {
		w = io.Discard
	}
	z := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return Logger{z: z}
}

// Discard is the disabled logger used when an Environment has no logging
// configured.
var Discard = New(io.Discard, zerolog.Disabled)

// Default logs to stderr at info level, handy for CLI tools built on kiln.
func Default() Logger { return New(os.Stderr, zerolog.InfoLevel) }

// WithCorrelationID returns a child logger carrying a fresh render-scoped
// correlation id, so every event from one Render call can be grep'd
// together in a shared Environment's concurrent log stream.
func (l Logger) WithCorrelationID() Logger {
	return Logger{z: l.z.With().Str("correlation_id", uuid.NewString()).Logger()}
}

// Event logs one structured audit event. extra is a set of key/value pairs
// merged into the JSON line (e.g. "template", "filter", "line").
func (l Logger) Event(evt EventType, msg string, extra map[string]interface{}) {
	ev := l.z.Info()
	if evt == EventSecurityViolation || evt == EventRecursionLimit {
		ev = l.z.Warn()
	}
	ev = ev.Str("event", string(evt))
	for k, v := range extra {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l Logger) Debugf(format string, args ...interface{}) { l.z.Debug().Msgf(format, args...) }
func (l Logger) Errorf(err error, format string, args ...interface{}) {
	l.z.Error().Err(err).Msgf(format, args...)
}
