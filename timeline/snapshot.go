// Package timeline maps execution timeline snapshots into ordered
// [execview.TimelineFrame] values.
package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/spf13/cast"
)

// Snapshot is the server's point-in-time view of an execution's timeline.
type Snapshot struct {
	ExecutionID string               `json:"execution_id"`
	Status      string               `json:"status,omitempty"`
	Progress    any                  `json:"progress,omitempty"`
	CurrentStep string               `json:"current_step,omitempty"`
	CompletedAt any                  `json:"completed_at,omitempty"`
	Error       any                  `json:"error,omitempty"`
	Frames      []Entry              `json:"frames,omitempty"`
	Timeline    []Entry              `json:"timeline,omitempty"`
	Logs        []execview.LogRecord `json:"logs,omitempty"`
}

// Entries returns the step entries regardless of which field carried them.
func (s *Snapshot) Entries() []Entry {
	if len(s.Frames) > 0 {
		return s.Frames
	}
	return s.Timeline
}

// Entry is one step of a snapshot. Its three parts are filled by different
// producers and may overlap.
type Entry struct {
	StepIndex any            `json:"step_index,omitempty"`
	Context   *StepContext   `json:"context,omitempty"`
	Results   *StepResults   `json:"results,omitempty"`
	Telemetry *StepTelemetry `json:"telemetry,omitempty"`
}

// StepContext is the static description of a step.
type StepContext struct {
	NodeID    string                    `json:"node_id,omitempty"`
	StepType  string                    `json:"step_type,omitempty"`
	URL       string                    `json:"url,omitempty"`
	Error     any                       `json:"error,omitempty"`
	Assertion *execview.AssertionRecord `json:"assertion,omitempty"`
	Retry     *execview.RetryRecord     `json:"retry,omitempty"`
}

// StepResults is the aggregated outcome of a step.
type StepResults struct {
	NodeID            string                          `json:"node_id,omitempty"`
	StepType          string                          `json:"step_type,omitempty"`
	Status            string                          `json:"status,omitempty"`
	Success           any                             `json:"success,omitempty"`
	Progress          any                             `json:"progress,omitempty"`
	FinalURL          string                          `json:"final_url,omitempty"`
	DurationMS        any                             `json:"duration_ms,omitempty"`
	TotalDurationMS   any                             `json:"total_duration_ms,omitempty"`
	Error             any                             `json:"error,omitempty"`
	ConsoleLogCount   any                             `json:"console_log_count,omitempty"`
	NetworkEventCount any                             `json:"network_event_count,omitempty"`
	Assertion         *execview.AssertionRecord       `json:"assertion,omitempty"`
	Screenshot        *execview.FrameScreenshotRecord `json:"screenshot,omitempty"`
	Artifacts         []execview.ArtifactRecord       `json:"artifacts,omitempty"`
}

// StepTelemetry is live data captured while the step ran.
type StepTelemetry struct {
	Status            string                          `json:"status,omitempty"`
	URL               string                          `json:"url,omitempty"`
	Error             any                             `json:"error,omitempty"`
	Screenshot        *execview.FrameScreenshotRecord `json:"screenshot,omitempty"`
	Cursor            *execview.Point                 `json:"cursor,omitempty"`
	ElementBox        *execview.BoundingBox           `json:"element_bounding_box,omitempty"`
	Retry             *execview.RetryRecord           `json:"retry,omitempty"`
	ConsoleLogCount   any                             `json:"console_log_count,omitempty"`
	NetworkEventCount any                             `json:"network_event_count,omitempty"`
	DOMSnapshot       *execview.ArtifactRecord        `json:"dom_snapshot,omitempty"`
	ConsoleLogs       *execview.ArtifactRecord        `json:"console_logs,omitempty"`
	NetworkEvents     *execview.ArtifactRecord        `json:"network_events,omitempty"`
}

// Decode parses a timeline snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding timeline: %w", err)
	}
	return &s, nil
}

// Summary is the execution-level state reported by a snapshot. Nil or
// empty fields mean the snapshot did not report them.
type Summary struct {
	Status      execview.Status
	Progress    *int
	CurrentStep string
	CompletedAt *time.Time
	Error       string
}

// Summarize extracts the execution-level fields. Unknown statuses are
// reported as absent rather than failing the whole snapshot.
func (s *Snapshot) Summarize() Summary {
	var sum Summary
	if s.Status != "" {
		if status, err := execview.ParseStatus(strings.ToLower(s.Status)); err == nil {
			sum.Status = status
		}
	}
	if s.Progress != nil {
		if p, err := cast.ToIntE(s.Progress); err == nil {
			p = execview.ClampProgress(p)
			sum.Progress = &p
		}
	}
	if t, ok := execview.ParseTime(s.CompletedAt); ok {
		sum.CompletedAt = &t
	}
	sum.CurrentStep = s.CurrentStep
	sum.Error = execview.Stringify(s.Error)
	return sum
}
