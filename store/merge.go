package store

import (
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/timeline"
)

// mergeSnapshot folds a timeline snapshot into e. Frames are replaced
// wholesale and logs are merged by ID. Status is adopted only when it moves
// the execution forward, or when the snapshot confirms or supersedes a
// pending local override; a terminal execution is never moved back.
func mergeSnapshot(e *execview.Execution, snap *timeline.Snapshot, now time.Time) {
	e.Timeline = timeline.Map(snap)
	e.Logs = execview.MergeLogs(e.Logs, timeline.MapLogs(snap, now))

	sum := snap.Summarize()
	adopted := false
	if sum.Status != "" && adoptStatus(e, sum.Status) {
		e.Status = sum.Status
		e.PendingOverride = nil
		adopted = true
	}
	if sum.Progress != nil && (*sum.Progress >= e.Progress || adopted) {
		e.Progress = *sum.Progress
	}
	if sum.CurrentStep != "" && !e.IsTerminal() {
		e.CurrentStep = sum.CurrentStep
	}
	// A pending override keeps its reason until a snapshot status replaces it.
	if sum.Error != "" && (adopted || e.PendingOverride == nil) {
		e.Error = sum.Error
	}

	if e.IsTerminal() {
		switch {
		case adopted && sum.CompletedAt != nil:
			completed := *sum.CompletedAt
			e.CompletedAt = &completed
		case e.CompletedAt == nil:
			completed := now
			if sum.CompletedAt != nil {
				completed = *sum.CompletedAt
			}
			e.CompletedAt = &completed
		}
	} else {
		e.CompletedAt = nil
	}
	if e.Status == execview.StatusCompleted {
		e.Progress = 100
	}
}

func adoptStatus(e *execview.Execution, status execview.Status) bool {
	switch {
	case status == e.Status:
		return e.PendingOverride != nil && status.IsTerminal()
	case e.PendingOverride != nil && status.IsTerminal():
		return true
	case status.Rank() > e.Status.Rank():
		return true
	default:
		// Terminal statuses share a rank; the snapshot is authoritative
		// between them.
		return e.IsTerminal() && status.IsTerminal()
	}
}
