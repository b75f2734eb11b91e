package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/heartbeat"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{250 * time.Millisecond, "250ms"},
		{1234 * time.Millisecond, "1.2s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, formatDuration(tc.in))
	}
}

func TestFrameDetail(t *testing.T) {
	require.Equal(t, "boom", frameDetail(execview.TimelineFrame{Error: "boom", FinalURL: "https://x"}))
	require.Equal(t, "fail text_equals h1", frameDetail(execview.TimelineFrame{
		Assertion: &execview.Assertion{Mode: "text_equals", Selector: "h1"},
	}))
	require.Equal(t, "https://x", frameDetail(execview.TimelineFrame{FinalURL: "https://x"}))
	require.Equal(t, "-", frameDetail(execview.TimelineFrame{}))
}

func TestFormatRetry(t *testing.T) {
	require.Equal(t, "-", formatRetry(nil))
	require.Equal(t, "-", formatRetry(&execview.RetryStatus{MaxAttempts: 1}))
	require.Equal(t, "2/3", formatRetry(&execview.RetryStatus{Configured: true, CurrentAttempt: 2, MaxAttempts: 3}))
}

func TestRenderExecutionOverride(t *testing.T) {
	var buf bytes.Buffer
	exec := &execview.Execution{
		ID:              "E",
		Status:          execview.StatusCancelled,
		Error:           "Cancelled by user",
		PendingOverride: &execview.Override{Status: execview.StatusCancelled},
	}
	require.NoError(t, renderExecution(&buf, exec, 0))
	require.Contains(t, buf.String(), "cancelled (awaiting confirmation)")
	require.Contains(t, buf.String(), "Error:     Cancelled by user")
	require.NotContains(t, buf.String(), "Timeline")
}

func TestCompileStepFilter(t *testing.T) {
	g, err := compileStepFilter("")
	require.NoError(t, err)
	require.Nil(t, g)

	g, err = compileStepFilter("login*")
	require.NoError(t, err)
	require.True(t, g.Match("login form"))
	require.False(t, g.Match("checkout"))

	_, err = compileStepFilter("[")
	require.Error(t, err)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	filter, err := compileStepFilter("login")
	require.NoError(t, err)
	p := newProgressPrinter(&buf, filter)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := &execview.Execution{ID: "E", Status: execview.StatusRunning, Progress: 10}
	exec.Logs = []execview.LogEntry{
		{ID: "a", Level: execview.LogLevelInfo, Message: "hidden", StepName: "open", Timestamp: ts},
		{ID: "b", Level: execview.LogLevelInfo, Message: "shown", StepName: "login", Timestamp: ts},
	}
	p.onChange(exec)
	p.onChange(exec)

	exec.Progress = 60
	exec.Timeline = []execview.TimelineFrame{{StepIndex: 0, NodeID: "login", StepType: "type", Status: "completed"}}
	p.onChange(exec)

	exec.Status = execview.StatusCompleted
	exec.Progress = 100
	p.onChange(exec)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "E running", lines[0])
	require.Equal(t, "progress 10%", lines[1])
	require.Contains(t, lines[2], "[login] shown")
	require.Equal(t, "progress 60%", lines[3])
	require.Equal(t, "step 0 type completed -", lines[4])
	require.Equal(t, "E completed", lines[5])
	require.Len(t, lines, 6)
	require.NotContains(t, buf.String(), "hidden")

	select {
	case <-p.Done():
	default:
		t.Fatal("printer should be done once the execution is terminal")
	}
	p.onChange(exec)
}

func TestProgressPrinterHeartbeat(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, nil)

	p.onHeartbeat(heartbeat.Reading{State: heartbeat.StateAwaiting})
	p.onHeartbeat(heartbeat.Reading{State: heartbeat.StateAwaiting})
	p.onHeartbeat(heartbeat.Reading{State: heartbeat.StateDelayed, Age: 9 * time.Second, LastActivity: time.Now(), Step: "wait"})
	p.onHeartbeat(heartbeat.Reading{State: heartbeat.StateHealthy, Final: true})

	require.Equal(t, "heartbeat awaiting\nheartbeat delayed (last activity 9s ago) wait\n", buf.String())
}
