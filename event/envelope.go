package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/execview"
	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed is returned for payloads that are not JSON objects.
	ErrMalformed = errors.New("malformed payload")

	// ErrUnrecognized is returned for JSON objects that match neither wire
	// shape.
	ErrUnrecognized = errors.New("unrecognized payload")
)

// nestedEnvelopeKeys are the fields some producers wrap a stream envelope in.
var nestedEnvelopeKeys = []string{"envelope", "payload", "data"}

// Envelope is a decoded wire message. The set of implementations is closed:
// StreamEnvelope and LegacyMessage.
type Envelope interface {
	// ExecutionID returns the execution the message is addressed to, or ""
	// if the message does not say.
	ExecutionID() string

	toEvent(m *mapping) (Event, error)
}

// Payload is the inner event of a stream envelope. Legacy "event" messages
// carry the same shape in their data field.
type Payload struct {
	Type        string                     `json:"type"`
	EventType   string                     `json:"event_type,omitempty"`
	ExecutionID string                     `json:"execution_id,omitempty"`
	Status      string                     `json:"status,omitempty"`
	Progress    any                        `json:"progress,omitempty"`
	CurrentStep string                     `json:"current_step,omitempty"`
	StepIndex   any                        `json:"step_index,omitempty"`
	StepName    string                     `json:"step_name,omitempty"`
	StepType    string                     `json:"step_type,omitempty"`
	NodeID      string                     `json:"node_id,omitempty"`
	Message     string                     `json:"message,omitempty"`
	Level       string                     `json:"level,omitempty"`
	Error       any                        `json:"error,omitempty"`
	Success     any                        `json:"success,omitempty"`
	DurationMS  any                        `json:"duration_ms,omitempty"`
	FinalURL    string                     `json:"final_url,omitempty"`
	ElapsedMS   any                        `json:"elapsed_ms,omitempty"`
	Timestamp   any                        `json:"timestamp,omitempty"`
	Log         *execview.LogRecord        `json:"log,omitempty"`
	Screenshot  *execview.ScreenshotRecord `json:"screenshot,omitempty"`
	Assertion   *execview.AssertionRecord  `json:"assertion,omitempty"`
	Retry       *execview.RetryRecord      `json:"retry,omitempty"`
	Heartbeat   *execview.HeartbeatRecord  `json:"heartbeat,omitempty"`
	Artifacts   []execview.ArtifactRecord  `json:"artifacts,omitempty"`
}

func (p *Payload) category() string {
	if p.Type != "" {
		return p.Type
	}
	return p.EventType
}

// StreamEnvelope is the structured wire format.
type StreamEnvelope struct {
	Execution string   `json:"execution_id"`
	Sequence  int64    `json:"sequence,omitempty"`
	Timestamp any      `json:"timestamp,omitempty"`
	Event     *Payload `json:"event"`
}

func (s *StreamEnvelope) ExecutionID() string {
	if s.Execution != "" {
		return s.Execution
	}
	return s.Event.ExecutionID
}

func (s *StreamEnvelope) toEvent(m *mapping) (Event, error) {
	return m.fromPayload(s.Event, s.Timestamp)
}

// LegacyMessage is the older flat wire format, discriminated by Type.
type LegacyMessage struct {
	Type        string          `json:"type"`
	Execution   string          `json:"execution_id,omitempty"`
	Progress    any             `json:"progress,omitempty"`
	CurrentStep string          `json:"current_step,omitempty"`
	StepName    string          `json:"step_name,omitempty"`
	Message     string          `json:"message,omitempty"`
	Level       string          `json:"level,omitempty"`
	Error       any             `json:"error,omitempty"`
	Timestamp   any             `json:"timestamp,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func (l *LegacyMessage) ExecutionID() string {
	if l.Execution != "" {
		return l.Execution
	}
	if len(l.Data) > 0 {
		return gjson.GetBytes(l.Data, "execution_id").String()
	}
	return ""
}

func (l *LegacyMessage) toEvent(m *mapping) (Event, error) {
	return m.fromLegacy(l)
}

// Decode interprets a raw push-channel payload. It tries, in order, a
// structured envelope, a structured envelope nested under one of the wrapper
// fields, and a legacy typed message.
func Decode(payload []byte) (Envelope, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrMalformed
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, ErrMalformed
	}
	if root.Get("event").IsObject() {
		return decodeStream([]byte(root.Raw), "")
	}
	for _, key := range nestedEnvelopeKeys {
		nested := root.Get(key)
		raw := nested.Raw
		if nested.Type == gjson.String && gjson.Valid(nested.Str) {
			raw = nested.Str
		}
		if raw == "" || !gjson.Get(raw, "event").IsObject() {
			continue
		}
		return decodeStream([]byte(raw), root.Get("execution_id").String())
	}
	if root.Get("type").Type == gjson.String {
		var msg LegacyMessage
		if err := json.Unmarshal([]byte(root.Raw), &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &msg, nil
	}
	return nil, ErrUnrecognized
}

func decodeStream(raw []byte, outerExecutionID string) (*StreamEnvelope, error) {
	var env StreamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == nil {
		return nil, ErrUnrecognized
	}
	if env.Execution == "" {
		env.Execution = outerExecutionID
	}
	return &env, nil
}
