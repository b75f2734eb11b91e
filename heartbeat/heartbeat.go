// Package heartbeat derives the liveness of a running execution from the age
// of its most recent activity signal.
package heartbeat

import (
	"time"

	"github.com/deepnoodle-ai/execview"
)

// State is a liveness classification.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting"
	StateHealthy  State = "healthy"
	StateDelayed  State = "delayed"
	StateStalled  State = "stalled"
)

func (s State) String() string {
	return string(s)
}

// Age thresholds between states.
const (
	DelayedAfter = 8 * time.Second
	StalledAfter = 15 * time.Second
)

// Reading is one evaluation of an execution's liveness.
type Reading struct {
	ExecutionID  string
	State        State
	Age          time.Duration
	LastActivity time.Time
	Step         string

	// Final is set once the execution is terminal and the reading will no
	// longer change.
	Final bool
}

// Classify maps a heartbeat age to a state.
func Classify(age time.Duration) State {
	switch {
	case age >= StalledAfter:
		return StateStalled
	case age >= DelayedAfter:
		return StateDelayed
	default:
		return StateHealthy
	}
}

// Evaluate computes the liveness of exec at now. Last activity is the
// heartbeat observation time, else the completion time, else the start time.
// A running execution that has not reported a heartbeat is awaiting one; an
// execution that is neither running nor has reported a heartbeat is idle.
func Evaluate(exec *execview.Execution, now time.Time) Reading {
	if exec == nil {
		return Reading{State: StateIdle}
	}
	r := Reading{ExecutionID: exec.ID, Final: exec.IsTerminal()}

	hb := exec.LastHeartbeat
	switch {
	case hb != nil && !hb.ObservedAt.IsZero():
		r.LastActivity = hb.ObservedAt
		r.Step = hb.Step
	case exec.CompletedAt != nil:
		r.LastActivity = *exec.CompletedAt
	default:
		r.LastActivity = exec.StartedAt
	}
	if !r.LastActivity.IsZero() {
		r.Age = max(now.Sub(r.LastActivity), 0)
	}
	if r.Step == "" {
		r.Step = exec.CurrentStep
	}

	hasHeartbeat := hb != nil && !hb.ObservedAt.IsZero()
	switch {
	case hasHeartbeat:
		r.State = Classify(r.Age)
	case exec.Status == execview.StatusRunning:
		r.State = StateAwaiting
	default:
		r.State = StateIdle
	}
	return r
}
