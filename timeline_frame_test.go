package execview

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertFrame(t *testing.T) {
	var frames []TimelineFrame
	frames = UpsertFrame(frames, TimelineFrame{StepIndex: 2, Status: "running"})
	frames = UpsertFrame(frames, TimelineFrame{StepIndex: 0, Status: "completed"})
	frames = UpsertFrame(frames, TimelineFrame{StepIndex: 1, Status: "completed"})
	frames = UpsertFrame(frames, TimelineFrame{StepIndex: 2, Status: "completed"})

	require.Len(t, frames, 3)
	for i, f := range frames {
		require.Equal(t, i, f.StepIndex)
		require.Equal(t, "completed", f.Status)
	}
}

func TestSortFrames(t *testing.T) {
	frames := []TimelineFrame{{StepIndex: 3}, {StepIndex: 1}, {StepIndex: 2}}
	SortFrames(frames)
	require.Equal(t, []int{1, 2, 3}, []int{frames[0].StepIndex, frames[1].StepIndex, frames[2].StepIndex})
}
