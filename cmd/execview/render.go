package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/heartbeat"
	"github.com/deepnoodle-ai/execview/internal/tablewriter"
	"github.com/fatih/color"
)

var (
	boldStyle    = color.New(color.Bold)
	mutedStyle   = color.New(color.FgHiBlack)
	errorStyle   = color.New(color.FgRed)
	successStyle = color.New(color.FgGreen)
	warnStyle    = color.New(color.FgYellow)
	infoStyle    = color.New(color.FgCyan)
)

const timeLayout = "Jan 2 15:04:05"

func statusStyle(status string) *color.Color {
	switch execview.Status(status) {
	case execview.StatusRunning:
		return infoStyle
	case execview.StatusCompleted:
		return successStyle
	case execview.StatusFailed:
		return errorStyle
	case execview.StatusCancelled:
		return warnStyle
	default:
		return mutedStyle
	}
}

func formatStatus(status string) string {
	if status == "" {
		status = "-"
	}
	return statusStyle(status).Sprint(status)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderExecutions(w io.Writer, execs []*execview.Execution) error {
	if len(execs) == 0 {
		_, err := fmt.Fprintln(w, "No executions found")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "WORKFLOW", "STATUS", "PROGRESS", "STARTED", "STEP")
	table.Limit(5, 40)
	for _, e := range execs {
		table.Append(
			e.ID,
			orDash(e.WorkflowID),
			formatStatus(string(e.Status)),
			strconv.Itoa(e.Progress)+"%",
			formatTime(e.StartedAt),
			orDash(e.CurrentStep),
		)
	}
	return table.Render()
}

func renderExecution(w io.Writer, e *execview.Execution, logLimit int) error {
	fmt.Fprintln(w, boldStyle.Sprintf("Execution %s", e.ID))
	fmt.Fprintf(w, "  Workflow:  %s\n", orDash(e.WorkflowID))
	status := formatStatus(string(e.Status))
	if e.PendingOverride != nil {
		status += mutedStyle.Sprint(" (awaiting confirmation)")
	}
	fmt.Fprintf(w, "  Status:    %s\n", status)
	fmt.Fprintf(w, "  Progress:  %d%%\n", e.Progress)
	if e.CurrentStep != "" {
		fmt.Fprintf(w, "  Step:      %s\n", e.CurrentStep)
	}
	fmt.Fprintf(w, "  Started:   %s\n", formatTime(e.StartedAt))
	if e.CompletedAt != nil {
		fmt.Fprintf(w, "  Finished:  %s\n", formatTime(*e.CompletedAt))
	}
	if page, ok := e.ActivePage(); ok {
		fmt.Fprintf(w, "  Page:      %s\n", orDash(page.URL))
	}
	if e.Error != "" {
		fmt.Fprintf(w, "  Error:     %s\n", errorStyle.Sprint(e.Error))
	}
	if len(e.Screenshots) > 0 {
		fmt.Fprintf(w, "  Screenshots: %d\n", len(e.Screenshots))
	}

	if len(e.Timeline) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, boldStyle.Sprint("Timeline"))
		if err := renderFrames(w, e.Timeline); err != nil {
			return err
		}
	}

	logs := e.Logs
	if logLimit > 0 && len(logs) > logLimit {
		logs = logs[len(logs)-logLimit:]
	}
	if len(logs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, boldStyle.Sprint("Logs"))
		for _, entry := range logs {
			fmt.Fprintln(w, formatLog(entry))
		}
	}
	return nil
}

func renderFrames(w io.Writer, frames []execview.TimelineFrame) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "TYPE", "STATUS", "DURATION", "RETRY", "DETAIL")
	table.Limit(5, 60)
	for _, f := range frames {
		table.Append(
			strconv.Itoa(f.StepIndex),
			orDash(f.StepType),
			formatStatus(f.Status),
			formatDuration(f.Duration),
			formatRetry(f.Retry),
			frameDetail(f),
		)
	}
	return table.Render()
}

func formatRetry(r *execview.RetryStatus) string {
	if r == nil || !r.Configured {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.CurrentAttempt, r.MaxAttempts)
}

// frameDetail picks the most useful single line to show for a step.
func frameDetail(f execview.TimelineFrame) string {
	switch {
	case f.Error != "":
		return errorStyle.Sprint(f.Error)
	case f.Assertion != nil:
		a := f.Assertion
		verdict := successStyle.Sprint("pass")
		if !a.Success {
			verdict = errorStyle.Sprint("fail")
		}
		return fmt.Sprintf("%s %s %s", verdict, a.Mode, orDash(a.Selector))
	case f.FinalURL != "":
		return f.FinalURL
	default:
		return "-"
	}
}

func logStyle(level execview.LogLevel) *color.Color {
	switch level {
	case execview.LogLevelError:
		return errorStyle
	case execview.LogLevelWarn:
		return warnStyle
	case execview.LogLevelSuccess:
		return successStyle
	case execview.LogLevelDebug:
		return mutedStyle
	default:
		return infoStyle
	}
}

func formatLog(entry execview.LogEntry) string {
	var sb strings.Builder
	sb.WriteString(mutedStyle.Sprint(entry.Timestamp.Local().Format(time.TimeOnly)))
	sb.WriteByte(' ')
	sb.WriteString(logStyle(entry.Level).Sprintf("%-7s", strings.ToUpper(string(entry.Level))))
	if entry.StepName != "" {
		sb.WriteString(boldStyle.Sprintf(" [%s]", entry.StepName))
	}
	sb.WriteByte(' ')
	sb.WriteString(entry.Message)
	return sb.String()
}

func heartbeatStyle(state heartbeat.State) *color.Color {
	switch state {
	case heartbeat.StateHealthy:
		return successStyle
	case heartbeat.StateDelayed:
		return warnStyle
	case heartbeat.StateStalled:
		return errorStyle
	default:
		return mutedStyle
	}
}

func formatHeartbeat(r heartbeat.Reading) string {
	line := heartbeatStyle(r.State).Sprintf("heartbeat %s", r.State)
	if !r.LastActivity.IsZero() {
		line += mutedStyle.Sprintf(" (last activity %s ago)", r.Age.Round(time.Second))
	}
	if r.Step != "" {
		line += " " + r.Step
	}
	return line
}
