package store

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/timeline"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allStatuses = []execview.Status{
	execview.StatusPending,
	execview.StatusRunning,
	execview.StatusCompleted,
	execview.StatusFailed,
	execview.StatusCancelled,
}

// step is one generated mutation: kind selects event status, snapshot or
// progress, and value selects the status or progress amount.
type step struct {
	kind  int
	value int
}

func genSteps() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(gen.IntRange(0, 2), gen.IntRange(0, 100)).Map(
		func(values []any) step {
			return step{kind: values[0].(int), value: values[1].(int)}
		},
	))
}

func TestStatusMonotonicityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a terminal execution never returns to pending or running", prop.ForAll(
		func(steps []step) bool {
			b := newFakeBackend()
			b.executions["E"] = runningExecution("E")
			s, _ := newTestStore(b)
			ctx := context.Background()
			if err := s.LoadExecution(ctx, "E"); err != nil {
				return false
			}
			wasTerminal := false
			for _, st := range steps {
				status := allStatuses[st.value%len(allStatuses)]
				switch st.kind {
				case 0:
					s.UpdateExecutionStatus("E", status, "", t0)
				case 1:
					b.mu.Lock()
					b.timelines["E"] = &timeline.Snapshot{ExecutionID: "E", Status: string(status), Progress: st.value}
					b.mu.Unlock()
					if err := s.RefreshTimeline(ctx, "E"); err != nil {
						return false
					}
				default:
					s.UpdateProgress("E", st.value, "")
				}
				current := s.Current()
				if wasTerminal && !current.IsTerminal() {
					return false
				}
				if current.IsTerminal() != (current.CompletedAt != nil) {
					return false
				}
				wasTerminal = current.IsTerminal()
			}
			return true
		},
		genSteps(),
	))

	properties.Property("status rank never decreases", prop.ForAll(
		func(steps []step) bool {
			b := newFakeBackend()
			b.executions["E"] = &execview.Execution{ID: "E", Status: execview.StatusPending}
			s, _ := newTestStore(b)
			if err := s.LoadExecution(context.Background(), "E"); err != nil {
				return false
			}
			rank := s.Current().Status.Rank()
			for _, st := range steps {
				s.UpdateExecutionStatus("E", allStatuses[st.value%len(allStatuses)], "", t0)
				next := s.Current().Status.Rank()
				if next < rank {
					return false
				}
				rank = next
			}
			return true
		},
		genSteps(),
	))

	properties.TestingRun(t)
}
