package timeline

import (
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/spf13/cast"
)

// Well-known telemetry artifact kinds.
const (
	ArtifactDOMSnapshot   = "dom_snapshot"
	ArtifactConsoleLogs   = "console_logs"
	ArtifactNetworkEvents = "network_events"
)

// Map converts a snapshot into frames ordered by step index, one frame per
// index. When entries collide on an index the later entry wins. It depends
// only on its input.
func Map(s *Snapshot) []execview.TimelineFrame {
	if s == nil {
		return nil
	}
	entries := s.Entries()
	frames := make([]execview.TimelineFrame, 0, len(entries))
	for i := range entries {
		frames = execview.UpsertFrame(frames, MapEntry(&entries[i], i))
	}
	return frames
}

// MapEntry converts one entry. position is used as the step index when the
// entry does not carry one.
func MapEntry(e *Entry, position int) execview.TimelineFrame {
	ctx := e.Context
	if ctx == nil {
		ctx = &StepContext{}
	}
	res := e.Results
	if res == nil {
		res = &StepResults{}
	}
	tel := e.Telemetry
	if tel == nil {
		tel = &StepTelemetry{}
	}

	index := position
	if e.StepIndex != nil {
		if v, err := cast.ToIntE(e.StepIndex); err == nil && v >= 0 {
			index = v
		}
	}

	frame := execview.TimelineFrame{
		StepIndex: index,
		NodeID:    firstString(ctx.NodeID, res.NodeID),
		StepType:  firstString(ctx.StepType, res.StepType),

		// Aggregated results win for outcome fields.
		Status:            firstString(res.Status, tel.Status),
		Progress:          execview.ClampProgress(cast.ToInt(res.Progress)),
		FinalURL:          firstString(res.FinalURL, tel.URL, ctx.URL),
		Duration:          execview.ParseDurationMillis(res.DurationMS),
		TotalDuration:     execview.ParseDurationMillis(res.TotalDurationMS),
		ConsoleLogCount:   firstInt(res.ConsoleLogCount, tel.ConsoleLogCount),
		NetworkEventCount: firstInt(res.NetworkEventCount, tel.NetworkEventCount),

		// Live telemetry wins for what was on screen.
		Screenshot: firstScreenshot(tel.Screenshot, res.Screenshot),
		Cursor:     copyPoint(tel.Cursor),
		ElementBox: copyBox(tel.ElementBox),

		// Static context wins for what the step was configured to do.
		Assertion: firstAssertion(ctx.Assertion, res.Assertion),
		Retry:     firstRetry(ctx.Retry, tel.Retry),
		Error: firstString(
			execview.Stringify(ctx.Error),
			execview.Stringify(res.Error),
			execview.Stringify(tel.Error),
		),
	}

	if res.Success != nil {
		frame.Success = cast.ToBool(res.Success)
	} else {
		frame.Success = frame.Status == string(execview.StatusCompleted) && frame.Error == ""
	}
	if frame.TotalDuration == 0 {
		frame.TotalDuration = frame.Duration
	}

	frame.Artifacts = mapArtifacts(index, res.Artifacts, tel)
	return frame
}

func mapArtifacts(index int, results []execview.ArtifactRecord, tel *StepTelemetry) []execview.ArtifactRef {
	var refs []execview.ArtifactRef
	for i := range results {
		refs = append(refs, results[i].Ref(index, "artifact", len(refs)))
	}
	named := []struct {
		kind   string
		record *execview.ArtifactRecord
	}{
		{ArtifactDOMSnapshot, tel.DOMSnapshot},
		{ArtifactConsoleLogs, tel.ConsoleLogs},
		{ArtifactNetworkEvents, tel.NetworkEvents},
	}
	for _, n := range named {
		if n.record == nil {
			continue
		}
		refs = append(refs, n.record.Ref(index, n.kind, len(refs)))
	}
	return refs
}

// MapLogs converts the snapshot's log records, deriving IDs where missing.
// now stands in for log lines without a usable timestamp.
func MapLogs(s *Snapshot, now time.Time) []execview.LogEntry {
	if s == nil || len(s.Logs) == 0 {
		return nil
	}
	entries := make([]execview.LogEntry, 0, len(s.Logs))
	for _, rec := range s.Logs {
		entries = append(entries, rec.Entry(now))
	}
	return entries
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...any) int {
	for _, v := range values {
		if v == nil {
			continue
		}
		if n, err := cast.ToIntE(v); err == nil {
			return n
		}
	}
	return 0
}

func firstScreenshot(records ...*execview.FrameScreenshotRecord) *execview.FrameScreenshot {
	for _, r := range records {
		if s := r.FrameScreenshot(); s != nil {
			return s
		}
	}
	return nil
}

func firstAssertion(records ...*execview.AssertionRecord) *execview.Assertion {
	for _, r := range records {
		if a := r.Assertion(); a != nil {
			return a
		}
	}
	return nil
}

func firstRetry(records ...*execview.RetryRecord) *execview.RetryStatus {
	for _, r := range records {
		if s := r.Status(); s != nil {
			return s
		}
	}
	return nil
}

func copyPoint(p *execview.Point) *execview.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copyBox(b *execview.BoundingBox) *execview.BoundingBox {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
