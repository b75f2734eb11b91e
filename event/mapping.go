package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/spf13/cast"
)

var (
	// ErrUnknownType is returned for legacy messages with an unknown type.
	ErrUnknownType = errors.New("unknown message type")

	// ErrUnknownCategory is returned for events with an unknown category.
	ErrUnknownCategory = errors.New("unknown event category")

	// ErrIncomplete is returned when an event lacks a field its category
	// requires.
	ErrIncomplete = errors.New("incomplete event")
)

// category is the canonical meaning of an event type string.
type category int

const (
	categoryUnknown category = iota
	categoryRunning
	categoryCompleted
	categoryFailed
	categoryCancelled
	categoryProgress
	categoryLog
	categoryScreenshot
	categoryHeartbeat
	categoryStepStarted
	categoryStepCompleted
	categoryStepFailed
)

var categories = map[string]category{
	"execution.started":   categoryRunning,
	"execution.running":   categoryRunning,
	"started":             categoryRunning,
	"running":             categoryRunning,
	"execution.completed": categoryCompleted,
	"completed":           categoryCompleted,
	"execution.failed":    categoryFailed,
	"failed":              categoryFailed,
	"execution.cancelled": categoryCancelled,
	"execution.canceled":  categoryCancelled,
	"cancelled":           categoryCancelled,
	"canceled":            categoryCancelled,
	"execution.progress":  categoryProgress,
	"progress":            categoryProgress,
	"step.log":            categoryLog,
	"log":                 categoryLog,
	"step.screenshot":     categoryScreenshot,
	"screenshot":          categoryScreenshot,
	"step.heartbeat":      categoryHeartbeat,
	"heartbeat":           categoryHeartbeat,
	"step.started":        categoryStepStarted,
	"step.completed":      categoryStepCompleted,
	"step.failed":         categoryStepFailed,
}

func lookupCategory(value string) category {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "_", ".")
	if c, ok := categories[value]; ok {
		return c
	}
	return categoryUnknown
}

// mapping converts decoded envelopes into canonical events for one
// execution at one instant.
type mapping struct {
	executionID string
	now         time.Time
}

func (m *mapping) timestamp(values ...any) time.Time {
	for _, v := range values {
		if t, ok := execview.ParseTime(v); ok {
			return t
		}
	}
	return m.now
}

func (m *mapping) fromLegacy(l *LegacyMessage) (Event, error) {
	at := m.timestamp(l.Timestamp)
	switch strings.ToLower(l.Type) {
	case "connected":
		return Connected{ExecutionID: m.executionID, At: at}, nil
	case "progress":
		step := l.CurrentStep
		if step == "" {
			step = l.StepName
		}
		return m.progress(l.Progress, step, at), nil
	case "log":
		rec := execview.LogRecord{
			Level:     l.Level,
			Message:   l.Message,
			StepName:  l.StepName,
			Timestamp: l.Timestamp,
		}
		return LogAppended{ExecutionID: m.executionID, Entry: rec.Entry(m.now)}, nil
	case "completed":
		return m.status(execview.StatusCompleted, "", at), nil
	case "failed":
		msg := execview.Stringify(l.Error)
		if msg == "" {
			msg = l.Message
		}
		return m.status(execview.StatusFailed, msg, at), nil
	case "cancelled", "canceled":
		return m.status(execview.StatusCancelled, l.Message, at), nil
	case "event":
		if len(l.Data) == 0 {
			return nil, fmt.Errorf("%w: event message without data", ErrIncomplete)
		}
		var p Payload
		if err := json.Unmarshal(l.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return m.fromPayload(&p, l.Timestamp)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, l.Type)
	}
}

func (m *mapping) status(status execview.Status, errMsg string, at time.Time) StatusChanged {
	return StatusChanged{ExecutionID: m.executionID, Status: status, Error: errMsg, At: at}
}

func (m *mapping) progress(value any, step string, at time.Time) ProgressUpdated {
	ev := ProgressUpdated{ExecutionID: m.executionID, CurrentStep: step, At: at}
	if value == nil {
		return ev
	}
	if p, err := cast.ToIntE(value); err == nil {
		ev.Progress = execview.ClampProgress(p)
		ev.HasProgress = true
	}
	return ev
}

func (m *mapping) fromPayload(p *Payload, envelopeTimestamp any) (Event, error) {
	at := m.timestamp(p.Timestamp, envelopeTimestamp)
	switch c := lookupCategory(p.category()); c {
	case categoryRunning:
		return m.status(execview.StatusRunning, "", at), nil
	case categoryCompleted:
		return m.status(execview.StatusCompleted, "", at), nil
	case categoryFailed:
		msg := execview.Stringify(p.Error)
		if msg == "" {
			msg = p.Message
		}
		return m.status(execview.StatusFailed, msg, at), nil
	case categoryCancelled:
		return m.status(execview.StatusCancelled, p.Message, at), nil
	case categoryProgress:
		step := p.CurrentStep
		if step == "" {
			step = p.StepName
		}
		return m.progress(p.Progress, step, at), nil
	case categoryLog:
		rec := execview.LogRecord{
			Level:     p.Level,
			Message:   p.Message,
			StepName:  p.StepName,
			Timestamp: p.Timestamp,
		}
		if p.Log != nil {
			rec = *p.Log
			if rec.StepName == "" {
				rec.StepName = p.StepName
			}
		}
		if rec.Timestamp == nil {
			rec.Timestamp = envelopeTimestamp
		}
		return LogAppended{ExecutionID: m.executionID, Entry: rec.Entry(m.now)}, nil
	case categoryScreenshot:
		if p.Screenshot == nil || p.Screenshot.URL == "" {
			return nil, fmt.Errorf("%w: screenshot event without url", ErrIncomplete)
		}
		rec := *p.Screenshot
		if rec.StepName == "" {
			rec.StepName = p.StepName
		}
		if rec.Timestamp == nil {
			rec.Timestamp = at
		}
		return ScreenshotCaptured{ExecutionID: m.executionID, Screenshot: rec.Screenshot(m.now)}, nil
	case categoryHeartbeat:
		rec := execview.HeartbeatRecord{StepName: p.StepName, ElapsedMS: p.ElapsedMS}
		if p.Heartbeat != nil {
			rec = *p.Heartbeat
		}
		hb := execview.Heartbeat{
			Step:          rec.Step,
			ElapsedInStep: execview.ParseDurationMillis(rec.ElapsedMS),
			ObservedAt:    m.timestamp(rec.Timestamp, p.Timestamp, envelopeTimestamp),
		}
		if hb.Step == "" {
			hb.Step = rec.StepName
		}
		return HeartbeatReceived{ExecutionID: m.executionID, Heartbeat: hb}, nil
	case categoryStepStarted, categoryStepCompleted, categoryStepFailed:
		return m.step(c, p, at)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, p.category())
	}
}

func (m *mapping) step(c category, p *Payload, at time.Time) (Event, error) {
	if p.StepIndex == nil {
		return nil, fmt.Errorf("%w: step event without step_index", ErrIncomplete)
	}
	index, err := cast.ToIntE(p.StepIndex)
	if err != nil || index < 0 {
		return nil, fmt.Errorf("%w: invalid step_index %v", ErrIncomplete, p.StepIndex)
	}
	frame := execview.TimelineFrame{
		StepIndex: index,
		NodeID:    p.NodeID,
		StepType:  p.StepType,
		Duration:  execview.ParseDurationMillis(p.DurationMS),
		FinalURL:  p.FinalURL,
		Error:     execview.Stringify(p.Error),
		Assertion: p.Assertion.Assertion(),
		Retry:     p.Retry.Status(),
	}
	switch c {
	case categoryStepStarted:
		frame.Status = string(execview.StatusRunning)
	case categoryStepCompleted:
		frame.Status = string(execview.StatusCompleted)
		frame.Success = true
	case categoryStepFailed:
		frame.Status = string(execview.StatusFailed)
	}
	if p.Success != nil {
		frame.Success = cast.ToBool(p.Success)
	}
	if p.Screenshot != nil && p.Screenshot.URL != "" {
		frame.Screenshot = &execview.FrameScreenshot{
			URL:          p.Screenshot.URL,
			ThumbnailURL: p.Screenshot.ThumbnailURL,
			Width:        cast.ToInt(p.Screenshot.Width),
			Height:       cast.ToInt(p.Screenshot.Height),
		}
	}
	for i := range p.Artifacts {
		frame.Artifacts = append(frame.Artifacts, p.Artifacts[i].Ref(index, "artifact", i))
	}
	return StepUpdated{
		ExecutionID: m.executionID,
		StepName:    p.StepName,
		Frame:       frame,
		At:          at,
	}, nil
}
