package zkauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one entry in the authentication audit trail. The engine
// emits one for every security-relevant transition: challenges issued,
// logins, lockouts, code flows, session and device lifecycle. IP and
// UserAgent come from the request context when the host attached them
// with WithClientIP / WithUserAgent.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher. Emit runs on
// the dispatcher goroutine: a slow sink backs up the dispatcher queue,
// never the authentication paths themselves.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event. It is the fallback when audit is
// enabled without a sink.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink hands events to an in-process consumer over a buffered
// channel, for hosts that ship the trail through their own pipeline.
type ChannelSink struct {
	out chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{out: make(chan AuditEvent, buffer)}
}

// Emit blocks until the consumer takes the event or ctx ends.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil {
		return
	}
	select {
	case s.out <- event:
	case <-ctx.Done():
	}
}

// Events is the consumer side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.out
}

// JSONWriterSink appends events to the writer as JSON lines. Encoding
// errors are swallowed: the trail is best-effort by contract.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.enc.Encode(event)
}
