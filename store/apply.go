package store

import (
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/event"
)

// UpdateExecutionStatus applies a status transition. Transitions backward,
// and any transition out of a terminal status, are ignored; the exception is
// a terminal status arriving for an execution with a pending override, which
// confirms or supersedes the override.
func (s *Store) UpdateExecutionStatus(executionID string, status execview.Status, errMsg string, at time.Time) bool {
	if !status.Valid() {
		return false
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.mutate(executionID, func(e *execview.Execution) bool {
		if e.IsTerminal() {
			if e.PendingOverride == nil || !status.IsTerminal() {
				s.logger.Debug("ignoring status for terminal execution",
					"execution_id", executionID, "status", status, "current", e.Status)
				return false
			}
			e.PendingOverride = nil
		} else if status.Rank() < e.Status.Rank() {
			return false
		} else if status == e.Status && errMsg == "" {
			return false
		}
		e.Status = status
		if errMsg != "" {
			e.Error = errMsg
		}
		if status.IsTerminal() {
			completed := at
			e.CompletedAt = &completed
		}
		if status == execview.StatusCompleted {
			e.Progress = 100
		}
		return true
	})
}

// UpdateProgress records progress and, if given, the current step. Progress
// for a terminal execution is ignored. The last value applied wins.
func (s *Store) UpdateProgress(executionID string, progress int, step string) bool {
	progress = execview.ClampProgress(progress)
	return s.mutate(executionID, func(e *execview.Execution) bool {
		if e.IsTerminal() {
			return false
		}
		if e.Progress == progress && (step == "" || step == e.CurrentStep) {
			return false
		}
		e.Progress = progress
		if step != "" {
			e.CurrentStep = step
		}
		return true
	})
}

// UpdateCurrentStep records the current step without touching progress.
func (s *Store) UpdateCurrentStep(executionID, step string) bool {
	if step == "" {
		return false
	}
	return s.mutate(executionID, func(e *execview.Execution) bool {
		if e.IsTerminal() || e.CurrentStep == step {
			return false
		}
		e.CurrentStep = step
		return true
	})
}

// AddLog appends a log entry unless an entry with the same ID exists.
func (s *Store) AddLog(executionID string, entry execview.LogEntry) bool {
	entry.EnsureID()
	return s.mutate(executionID, func(e *execview.Execution) bool {
		before := len(e.Logs)
		e.Logs = execview.MergeLogs(e.Logs, []execview.LogEntry{entry})
		return len(e.Logs) != before
	})
}

// AddScreenshot attaches a screenshot unless one with the same ID exists.
func (s *Store) AddScreenshot(executionID string, shot execview.Screenshot) bool {
	return s.mutate(executionID, func(e *execview.Execution) bool {
		return e.AddScreenshot(shot)
	})
}

// RecordHeartbeat replaces the last heartbeat. Heartbeats older than the one
// already recorded, and heartbeats for a terminal execution, are ignored.
func (s *Store) RecordHeartbeat(executionID string, hb execview.Heartbeat) bool {
	if hb.ObservedAt.IsZero() {
		hb.ObservedAt = s.now()
	}
	return s.mutate(executionID, func(e *execview.Execution) bool {
		if e.IsTerminal() {
			return false
		}
		if e.LastHeartbeat != nil && hb.ObservedAt.Before(e.LastHeartbeat.ObservedAt) {
			return false
		}
		e.LastHeartbeat = &hb
		if hb.Step != "" {
			e.CurrentStep = hb.Step
		}
		return true
	})
}

// UpsertFrame replaces the frame with the same step index or inserts it.
// stepName, if set, becomes the current step while the step is running.
func (s *Store) UpsertFrame(executionID, stepName string, frame execview.TimelineFrame) bool {
	return s.mutate(executionID, func(e *execview.Execution) bool {
		e.Timeline = execview.UpsertFrame(e.Timeline, frame.Clone())
		if stepName != "" && !e.IsTerminal() && frame.Status == string(execview.StatusRunning) {
			e.CurrentStep = stepName
		}
		return true
	})
}

// Apply routes a canonical event to the matching applier. It reports whether
// the current execution changed.
func (s *Store) Apply(ev event.Event) bool {
	return event.Dispatch(ev, applier{s})
}

type applier struct {
	s *Store
}

func (a applier) HandleConnected(e event.Connected) bool {
	a.s.logger.Debug("push channel connected", "execution_id", e.ExecutionID)
	return false
}

func (a applier) HandleStatus(e event.StatusChanged) bool {
	return a.s.UpdateExecutionStatus(e.ExecutionID, e.Status, e.Error, e.At)
}

func (a applier) HandleProgress(e event.ProgressUpdated) bool {
	if !e.HasProgress {
		return a.s.UpdateCurrentStep(e.ExecutionID, e.CurrentStep)
	}
	return a.s.UpdateProgress(e.ExecutionID, e.Progress, e.CurrentStep)
}

func (a applier) HandleLog(e event.LogAppended) bool {
	return a.s.AddLog(e.ExecutionID, e.Entry)
}

func (a applier) HandleScreenshot(e event.ScreenshotCaptured) bool {
	return a.s.AddScreenshot(e.ExecutionID, e.Screenshot)
}

func (a applier) HandleHeartbeat(e event.HeartbeatReceived) bool {
	return a.s.RecordHeartbeat(e.ExecutionID, e.Heartbeat)
}

func (a applier) HandleStep(e event.StepUpdated) bool {
	return a.s.UpsertFrame(e.ExecutionID, e.StepName, e.Frame)
}
