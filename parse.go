package execview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ErrMissingID is returned when a wire record has no identity.
var ErrMissingID = errors.New("record has no id")

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// Seconds values stay below it until the year 33658.
const epochMillisThreshold = 1e12

// ParseTime interprets a timestamp that may arrive as an ISO-8601 string, an
// epoch number (seconds or milliseconds, possibly as a numeric string), or a
// structured {seconds, nanos} object. It returns false if the value cannot be
// interpreted.
func ParseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil, bool:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if n, err := cast.ToFloat64E(s); err == nil {
			return epochTime(n)
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case map[string]any:
		return structuredTime(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return time.Time{}, false
		}
		return ParseTime(decoded)
	default:
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return time.Time{}, false
		}
		return epochTime(n)
	}
}

// ParseTimeOr is ParseTime with a fallback for unparsable values.
func ParseTimeOr(value any, fallback time.Time) time.Time {
	if t, ok := ParseTime(value); ok {
		return t
	}
	return fallback
}

func epochTime(n float64) (time.Time, bool) {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, false
	}
	if n >= epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func structuredTime(m map[string]any) (time.Time, bool) {
	rawSeconds, ok := m["seconds"]
	if !ok {
		return time.Time{}, false
	}
	seconds, err := cast.ToInt64E(rawSeconds)
	if err != nil {
		return time.Time{}, false
	}
	nanos, _ := cast.ToInt32E(m["nanos"])
	ts := &timestamppb.Timestamp{Seconds: seconds, Nanos: nanos}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, false
	}
	return ts.AsTime(), true
}

// ParseDurationMillis interprets a millisecond count that may be numeric or a
// numeric string. Missing or malformed values yield zero.
func ParseDurationMillis(value any) time.Duration {
	if value == nil {
		return 0
	}
	ms, err := cast.ToFloat64E(value)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// LogRecord is the wire form of a log line.
type LogRecord struct {
	ID        string `json:"id,omitempty"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
	StepName  string `json:"step_name,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// Entry converts the record into a LogEntry with a derived ID if the record
// has none.
func (r LogRecord) Entry(fallback time.Time) LogEntry {
	entry := LogEntry{
		ID:        r.ID,
		Level:     ParseLogLevel(r.Level),
		Message:   r.Message,
		StepName:  r.StepName,
		Timestamp: ParseTimeOr(r.Timestamp, fallback),
	}
	entry.EnsureID()
	return entry
}

// ScreenshotRecord is the wire form of a screenshot.
type ScreenshotRecord struct {
	ID           string `json:"id,omitempty"`
	StepName     string `json:"step_name,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Timestamp    any    `json:"timestamp,omitempty"`
	Width        any    `json:"width,omitempty"`
	Height       any    `json:"height,omitempty"`
}

// Screenshot converts the record, deriving an ID from the URL if needed.
func (r ScreenshotRecord) Screenshot(fallback time.Time) Screenshot {
	id := r.ID
	if id == "" {
		id = "screenshot-" + uuid.NewSHA1(idNamespace, []byte(r.URL)).String()
	}
	return Screenshot{
		ID:           id,
		StepName:     r.StepName,
		URL:          r.URL,
		ThumbnailURL: r.ThumbnailURL,
		Timestamp:    ParseTimeOr(r.Timestamp, fallback),
		Width:        cast.ToInt(r.Width),
		Height:       cast.ToInt(r.Height),
	}
}

// HeartbeatRecord is the wire form of a heartbeat.
type HeartbeatRecord struct {
	Step      string `json:"step,omitempty"`
	StepName  string `json:"step_name,omitempty"`
	ElapsedMS any    `json:"elapsed_ms,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// Heartbeat converts the record. It returns nil if the record carries no
// usable observation time, since an undated heartbeat cannot be aged.
func (r *HeartbeatRecord) Heartbeat() *Heartbeat {
	if r == nil {
		return nil
	}
	observed, ok := ParseTime(r.Timestamp)
	if !ok {
		return nil
	}
	step := r.Step
	if step == "" {
		step = r.StepName
	}
	return &Heartbeat{
		Step:          step,
		ElapsedInStep: ParseDurationMillis(r.ElapsedMS),
		ObservedAt:    observed,
	}
}

type executionRecord struct {
	ID            any                `json:"id"`
	ExecutionID   any                `json:"execution_id"`
	WorkflowID    any                `json:"workflow_id"`
	Status        string             `json:"status"`
	StartedAt     any                `json:"started_at"`
	CompletedAt   any                `json:"completed_at"`
	Progress      any                `json:"progress"`
	CurrentStep   string             `json:"current_step"`
	Error         any                `json:"error"`
	LastHeartbeat *HeartbeatRecord   `json:"last_heartbeat"`
	Logs          []LogRecord        `json:"logs"`
	Screenshots   []ScreenshotRecord `json:"screenshots"`
	Pages         []Page             `json:"pages"`
	ActivePageID  string             `json:"active_page_id"`
}

// ParseExecution decodes a server execution record. Scalar fields are
// coerced leniently; a record without an ID or with an unknown status is
// rejected. now is used for timestamps the record omits.
func ParseExecution(data []byte, now time.Time) (*Execution, error) {
	var rec executionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding execution: %w", err)
	}
	id := cast.ToString(rec.ID)
	if id == "" {
		id = cast.ToString(rec.ExecutionID)
	}
	if id == "" {
		return nil, ErrMissingID
	}
	status := StatusPending
	if rec.Status != "" {
		parsed, err := ParseStatus(strings.ToLower(rec.Status))
		if err != nil {
			return nil, fmt.Errorf("execution %s: %w", id, err)
		}
		status = parsed
	}
	exec := &Execution{
		ID:            id,
		WorkflowID:    cast.ToString(rec.WorkflowID),
		Status:        status,
		StartedAt:     ParseTimeOr(rec.StartedAt, now),
		Progress:      cast.ToInt(rec.Progress),
		CurrentStep:   rec.CurrentStep,
		Error:         cast.ToString(rec.Error),
		LastHeartbeat: rec.LastHeartbeat.Heartbeat(),
		Pages:         rec.Pages,
		ActivePageID:  rec.ActivePageID,
	}
	if completed, ok := ParseTime(rec.CompletedAt); ok {
		exec.CompletedAt = &completed
	}
	for _, lr := range rec.Logs {
		exec.Logs = append(exec.Logs, lr.Entry(now))
	}
	for _, sr := range rec.Screenshots {
		exec.AddScreenshot(sr.Screenshot(now))
	}
	exec.Normalize(now)
	return exec, nil
}
