// Package relay turns log entries into server:log events for logs-viewer
// connections via the Observer tap.
package relay

import (
	"go.uber.org/zap/zapcore"
)

// LogRecord is one observed action: the structured form of a log entry that
// the hub fans out to logs-viewer connections. Records are never stored or
// replayed; the tap is live only.
type LogRecord struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Observer is a zapcore.Core that converts every enabled log entry into a
// LogRecord on a bounded channel. Writes never block: when the channel is
// full the record is dropped, so a slow or absent consumer cannot stall a
// logging call. Tee it with the console core via NewLogger.
type Observer struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
	sink   chan LogRecord
}

// NewObserver creates an observer tap buffering up to capacity records.
func NewObserver(capacity int) *Observer {
	if capacity <= 0 {
		capacity = 256
	}
	return &Observer{
		LevelEnabler: zapcore.InfoLevel,
		sink:         make(chan LogRecord, capacity),
	}
}

// Records exposes the stream of observed actions consumed by the hub.
func (o *Observer) Records() <-chan LogRecord {
	return o.sink
}

// With implements zapcore.Core.
func (o *Observer) With(fields []zapcore.Field) zapcore.Core {
	clone := &Observer{
		LevelEnabler: o.LevelEnabler,
		fields:       append(append([]zapcore.Field(nil), o.fields...), fields...),
		sink:         o.sink,
	}
	return clone
}

// Check implements zapcore.Core.
func (o *Observer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if o.Enabled(ent.Level) {
		return ce.AddCore(ent, o)
	}
	return ce
}

// Write implements zapcore.Core. Field values are flattened into the record
// payload; the credential token is never logged anywhere, so records are safe
// to hand to logs-viewer connections.
func (o *Observer) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range o.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	rec := LogRecord{
		Kind:      ent.Level.String(),
		Message:   ent.Message,
		Timestamp: ent.Time.UnixMilli(),
	}
	if len(enc.Fields) > 0 {
		rec.Payload = enc.Fields
	}

	select {
	case o.sink <- rec:
	default:
	}
	return nil
}

// Sync implements zapcore.Core.
func (o *Observer) Sync() error {
	return nil
}
