// Package event turns push-channel payloads into canonical execution events.
//
// Two wire shapes are understood: the structured stream envelope and the
// legacy flat message. Both decode into a closed set of [Envelope] variants,
// and each variant maps onto exactly one canonical [Event]. Consumers handle
// events through [Handler], so adding a variant is a compile error for every
// consumer until it is handled.
package event

import (
	"time"

	"github.com/deepnoodle-ai/execview"
)

// Kind names an event variant for logging.
type Kind string

const (
	KindConnected  Kind = "connected"
	KindStatus     Kind = "status"
	KindProgress   Kind = "progress"
	KindLog        Kind = "log"
	KindScreenshot Kind = "screenshot"
	KindHeartbeat  Kind = "heartbeat"
	KindStep       Kind = "step"
)

// Event is a canonical execution event. The set of implementations is
// closed: only the types in this package satisfy it.
type Event interface {
	// Target returns the ID of the execution the event applies to.
	Target() string

	// Kind returns the variant name.
	Kind() Kind

	accept(h Handler) bool
}

// Handler receives each event variant. Every method reports whether the
// event changed the handler's state.
type Handler interface {
	HandleConnected(e Connected) bool
	HandleStatus(e StatusChanged) bool
	HandleProgress(e ProgressUpdated) bool
	HandleLog(e LogAppended) bool
	HandleScreenshot(e ScreenshotCaptured) bool
	HandleHeartbeat(e HeartbeatReceived) bool
	HandleStep(e StepUpdated) bool
}

// Dispatch passes e to the matching Handler method.
func Dispatch(e Event, h Handler) bool {
	if e == nil {
		return false
	}
	return e.accept(h)
}

// Connected reports that the push channel acknowledged the subscription.
type Connected struct {
	ExecutionID string
	At          time.Time
}

func (e Connected) Target() string        { return e.ExecutionID }
func (e Connected) Kind() Kind            { return KindConnected }
func (e Connected) accept(h Handler) bool { return h.HandleConnected(e) }

// StatusChanged moves the execution to a new lifecycle status.
type StatusChanged struct {
	ExecutionID string
	Status      execview.Status
	Error       string
	At          time.Time
}

func (e StatusChanged) Target() string        { return e.ExecutionID }
func (e StatusChanged) Kind() Kind            { return KindStatus }
func (e StatusChanged) accept(h Handler) bool { return h.HandleStatus(e) }

// ProgressUpdated reports overall progress and optionally the current step.
// HasProgress is false when the message named a step but carried no usable
// progress value.
type ProgressUpdated struct {
	ExecutionID string
	Progress    int
	HasProgress bool
	CurrentStep string
	At          time.Time
}

func (e ProgressUpdated) Target() string        { return e.ExecutionID }
func (e ProgressUpdated) Kind() Kind            { return KindProgress }
func (e ProgressUpdated) accept(h Handler) bool { return h.HandleProgress(e) }

// LogAppended carries one log line.
type LogAppended struct {
	ExecutionID string
	Entry       execview.LogEntry
}

func (e LogAppended) Target() string        { return e.ExecutionID }
func (e LogAppended) Kind() Kind            { return KindLog }
func (e LogAppended) accept(h Handler) bool { return h.HandleLog(e) }

// ScreenshotCaptured carries a newly captured screenshot.
type ScreenshotCaptured struct {
	ExecutionID string
	Screenshot  execview.Screenshot
}

func (e ScreenshotCaptured) Target() string        { return e.ExecutionID }
func (e ScreenshotCaptured) Kind() Kind            { return KindScreenshot }
func (e ScreenshotCaptured) accept(h Handler) bool { return h.HandleScreenshot(e) }

// HeartbeatReceived carries a liveness signal.
type HeartbeatReceived struct {
	ExecutionID string
	Heartbeat   execview.Heartbeat
}

func (e HeartbeatReceived) Target() string        { return e.ExecutionID }
func (e HeartbeatReceived) Kind() Kind            { return KindHeartbeat }
func (e HeartbeatReceived) accept(h Handler) bool { return h.HandleHeartbeat(e) }

// StepUpdated carries the latest state of one step. It replaces any frame
// with the same step index.
type StepUpdated struct {
	ExecutionID string
	StepName    string
	Frame       execview.TimelineFrame
	At          time.Time
}

func (e StepUpdated) Target() string        { return e.ExecutionID }
func (e StepUpdated) Kind() Kind            { return KindStep }
func (e StepUpdated) accept(h Handler) bool { return h.HandleStep(e) }
