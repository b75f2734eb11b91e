package timeline

import (
	"testing"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data string) *Snapshot {
	t.Helper()
	s, err := Decode([]byte(data))
	require.NoError(t, err)
	return s
}

func TestMapOrdersByStepIndex(t *testing.T) {
	s := decode(t, `{"execution_id":"e1","frames":[
		{"step_index":2,"results":{"status":"completed"}},
		{"step_index":0,"results":{"status":"completed"}},
		{"step_index":1,"results":{"status":"running"}}
	]}`)
	frames := Map(s)
	require.Len(t, frames, 3)
	for i, f := range frames {
		require.Equal(t, i, f.StepIndex)
	}
	require.Equal(t, "running", frames[1].Status)
}

func TestMapDefaultsStepIndexToPosition(t *testing.T) {
	s := decode(t, `{"timeline":[{"results":{"status":"completed"}},{"results":{"status":"failed"}}]}`)
	frames := Map(s)
	require.Equal(t, 0, frames[0].StepIndex)
	require.Equal(t, 1, frames[1].StepIndex)
	require.True(t, frames[0].Success)
	require.False(t, frames[1].Success)
}

func TestMapCollidingStepIndexKeepsLaterEntry(t *testing.T) {
	s := decode(t, `{"frames":[
		{"step_index":1,"results":{"status":"running"}},
		{"results":{"status":"completed"}},
		{"step_index":0,"results":{"status":"completed"}},
		{"step_index":0,"results":{"status":"failed"}}
	]}`)
	frames := Map(s)
	require.Len(t, frames, 2)
	require.Equal(t, 0, frames[0].StepIndex)
	require.Equal(t, "failed", frames[0].Status)
	require.Equal(t, 1, frames[1].StepIndex)
	require.Equal(t, "completed", frames[1].Status)
}

func TestMapPrecedence(t *testing.T) {
	s := decode(t, `{"frames":[{
		"step_index": 4,
		"context": {
			"node_id": "n4", "step_type": "assert", "url": "https://ctx",
			"error": "context error",
			"assertion": {"mode": "visible", "selector": "#a", "success": true},
			"retry": {"current_attempt": 1, "max_attempts": 3}
		},
		"results": {
			"status": "completed", "success": false, "progress": 80,
			"final_url": "https://results", "duration_ms": 1500, "total_duration_ms": 3000,
			"error": "results error", "console_log_count": 7,
			"assertion": {"mode": "hidden"},
			"screenshot": {"url": "https://results.png"}
		},
		"telemetry": {
			"status": "running", "url": "https://telemetry",
			"screenshot": {"url": "https://telemetry.png", "width": 1280, "height": 720},
			"cursor": {"x": 10, "y": 20},
			"element_bounding_box": {"x": 1, "y": 2, "width": 3, "height": 4},
			"retry": {"current_attempt": 2, "max_attempts": 5},
			"console_log_count": 99, "network_event_count": 12
		}
	}]}`)
	f := Map(s)[0]

	require.Equal(t, "completed", f.Status)
	require.False(t, f.Success)
	require.Equal(t, 80, f.Progress)
	require.Equal(t, "https://results", f.FinalURL)
	require.Equal(t, 1500*time.Millisecond, f.Duration)
	require.Equal(t, 3*time.Second, f.TotalDuration)
	require.Equal(t, 7, f.ConsoleLogCount)
	require.Equal(t, 12, f.NetworkEventCount)

	require.Equal(t, "https://telemetry.png", f.Screenshot.URL)
	require.Equal(t, 1280, f.Screenshot.Width)
	require.Equal(t, &execview.Point{X: 10, Y: 20}, f.Cursor)
	require.Equal(t, 3.0, f.ElementBox.Width)

	require.Equal(t, "visible", f.Assertion.Mode)
	require.Equal(t, 3, f.Retry.MaxAttempts)
	require.True(t, f.Retry.Configured)
	require.Equal(t, "context error", f.Error)
	require.Equal(t, "n4", f.NodeID)
}

func TestMapFallsBackWhenPreferredSourceIsMissing(t *testing.T) {
	s := decode(t, `{"frames":[{
		"step_index": 0,
		"results": {"screenshot": {"url": "https://results.png"}, "error": "late"},
		"telemetry": {"status": "running", "url": "https://telemetry", "retry": {"max_attempts": 2}}
	}]}`)
	f := Map(s)[0]
	require.Equal(t, "running", f.Status)
	require.Equal(t, "https://telemetry", f.FinalURL)
	require.Equal(t, "https://results.png", f.Screenshot.URL)
	require.Equal(t, "late", f.Error)
	require.Equal(t, 2, f.Retry.MaxAttempts)
}

func TestMapMissingOptionalPartsAreNil(t *testing.T) {
	f := Map(decode(t, `{"frames":[{"step_index":0}]}`))[0]
	require.Nil(t, f.Screenshot)
	require.Nil(t, f.ElementBox)
	require.Nil(t, f.Cursor)
	require.Nil(t, f.Assertion)
	require.Nil(t, f.Retry)
	require.Empty(t, f.Artifacts)
}

func TestMapRetryHistoryKeepsSourceOrder(t *testing.T) {
	f := Map(decode(t, `{"frames":[{"context":{"retry":{"max_attempts":3,"history":[
		{"attempt":3,"error":"c"},{"attempt":1,"error":"a"},{"attempt":2,"error":"b"}
	]}}}]}`))[0]
	var got []string
	for _, h := range f.Retry.History {
		got = append(got, h.Error)
	}
	require.Equal(t, []string{"c", "a", "b"}, got)
}

func TestMapArtifacts(t *testing.T) {
	s := decode(t, `{"frames":[{
		"step_index": 2,
		"results": {"artifacts": [
			{"id": "a-1", "type": "video", "storage_url": "s3://v"},
			{"artifact_type": "har", "storage_url": "s3://h"}
		]},
		"telemetry": {
			"dom_snapshot": {"storage_url": "s3://dom"},
			"network_events": {"id": "net-9", "size_bytes": 2048}
		}
	}]}`)
	refs := Map(s)[0].Artifacts
	require.Len(t, refs, 4)

	require.Equal(t, "a-1", refs[0].ID)
	require.Equal(t, "har", refs[1].Type)
	require.Equal(t, execview.DeriveArtifactID(2, "har", 1), refs[1].ID)
	require.Equal(t, ArtifactDOMSnapshot, refs[2].Type)
	require.Equal(t, execview.DeriveArtifactID(2, ArtifactDOMSnapshot, 2), refs[2].ID)
	require.Equal(t, "net-9", refs[3].ID)
	require.Equal(t, int64(2048), refs[3].SizeBytes)
}

func TestMapIsDeterministic(t *testing.T) {
	data := `{"frames":[{"step_index":1,"telemetry":{"console_logs":{"storage_url":"s3://c"}}}]}`
	require.Equal(t, Map(decode(t, data)), Map(decode(t, data)))
	require.Nil(t, Map(nil))
}

func TestMapLogs(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := decode(t, `{"logs":[
		{"id":"l1","level":"warn","message":"slow","timestamp":"2025-03-01T11:00:00Z"},
		{"message":"no id","step_name":"open"}
	]}`)
	logs := MapLogs(s, now)
	require.Len(t, logs, 2)
	require.Equal(t, "l1", logs[0].ID)
	require.Equal(t, execview.LogLevelWarn, logs[0].Level)
	require.Equal(t, execview.DeriveLogID("open", "no id", now), logs[1].ID)
	require.Equal(t, now, logs[1].Timestamp)
}

func TestSummarize(t *testing.T) {
	s := decode(t, `{"execution_id":"e1","status":"COMPLETED","progress":140,
		"completed_at":1740830400,"error":{"code":"x"}}`)
	sum := s.Summarize()
	require.Equal(t, execview.StatusCompleted, sum.Status)
	require.Equal(t, 100, *sum.Progress)
	require.Equal(t, time.Unix(1740830400, 0).UTC(), sum.CompletedAt.UTC())
	require.Equal(t, `{"code":"x"}`, sum.Error)

	empty := decode(t, `{"execution_id":"e1","status":"weird"}`).Summarize()
	require.Equal(t, execview.Status(""), empty.Status)
	require.Nil(t, empty.Progress)
	require.Nil(t, empty.CompletedAt)
}
