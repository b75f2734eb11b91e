package execview

import (
	"fmt"
	"time"
)

// Status is the lifecycle status of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for completed, failed and cancelled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Rank orders statuses by how far along the lifecycle they are. All terminal
// statuses share the highest rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 2
	default:
		return -1
	}
}

// ParseStatus converts a wire status string into a Status. A few aliases
// used by older producers are accepted.
func ParseStatus(value string) (Status, error) {
	switch value {
	case "pending", "queued", "created":
		return StatusPending, nil
	case "running", "in_progress", "started":
		return StatusRunning, nil
	case "completed", "succeeded", "success":
		return StatusCompleted, nil
	case "failed", "error":
		return StatusFailed, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown execution status %q", value)
	}
}

// Heartbeat is the most recent liveness signal reported for a running
// execution.
type Heartbeat struct {
	Step          string        `json:"step,omitempty"`
	ElapsedInStep time.Duration `json:"elapsed_in_step,omitempty"`
	ObservedAt    time.Time     `json:"observed_at"`
}

// Age returns how long ago the heartbeat was observed, clamped to zero.
func (h *Heartbeat) Age(now time.Time) time.Duration {
	age := now.Sub(h.ObservedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Screenshot is a captured page image attached to an execution.
type Screenshot struct {
	ID           string    `json:"id"`
	StepName     string    `json:"step_name,omitempty"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
}

// Page is one logical browser page (tab) of a multi-page execution.
type Page struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Override marks a local status change that has not yet been confirmed by
// the server.
type Override struct {
	Status Status    `json:"status"`
	Reason string    `json:"reason,omitempty"`
	SetAt  time.Time `json:"set_at"`
}

// Execution is one observed run of a workflow.
type Execution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	Status          Status          `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Progress        int             `json:"progress"`
	CurrentStep     string          `json:"current_step,omitempty"`
	Error           string          `json:"error,omitempty"`
	LastHeartbeat   *Heartbeat      `json:"last_heartbeat,omitempty"`
	Logs            []LogEntry      `json:"logs,omitempty"`
	Timeline        []TimelineFrame `json:"timeline,omitempty"`
	Screenshots     []Screenshot    `json:"screenshots,omitempty"`
	Pages           []Page          `json:"pages,omitempty"`
	ActivePageID    string          `json:"active_page_id,omitempty"`
	PendingOverride *Override       `json:"pending_override,omitempty"`
}

// IsTerminal returns true if the execution has finished.
func (e *Execution) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// ActivePage returns the active page, if the execution tracks one.
func (e *Execution) ActivePage() (Page, bool) {
	for _, page := range e.Pages {
		if page.ID == e.ActivePageID {
			return page, true
		}
	}
	return Page{}, false
}

// Normalize enforces the invariants of a freshly parsed execution: progress
// is clamped to 0..100 and CompletedAt is present iff the status is terminal.
// fallback is used as the completion time when a terminal record has none.
func (e *Execution) Normalize(fallback time.Time) {
	e.Progress = ClampProgress(e.Progress)
	if e.Status.IsTerminal() {
		if e.CompletedAt == nil {
			completed := fallback
			e.CompletedAt = &completed
		}
	} else {
		e.CompletedAt = nil
	}
	e.Logs = MergeLogs(nil, e.Logs)
	SortFrames(e.Timeline)
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	if e.CompletedAt != nil {
		completed := *e.CompletedAt
		c.CompletedAt = &completed
	}
	if e.LastHeartbeat != nil {
		hb := *e.LastHeartbeat
		c.LastHeartbeat = &hb
	}
	if e.PendingOverride != nil {
		o := *e.PendingOverride
		c.PendingOverride = &o
	}
	if e.Logs != nil {
		c.Logs = append([]LogEntry(nil), e.Logs...)
	}
	if e.Screenshots != nil {
		c.Screenshots = append([]Screenshot(nil), e.Screenshots...)
	}
	if e.Pages != nil {
		c.Pages = append([]Page(nil), e.Pages...)
	}
	if e.Timeline != nil {
		c.Timeline = make([]TimelineFrame, len(e.Timeline))
		for i := range e.Timeline {
			c.Timeline[i] = e.Timeline[i].Clone()
		}
	}
	return &c
}

// AddScreenshot appends a screenshot unless one with the same ID exists.
// It returns false if the screenshot was a duplicate.
func (e *Execution) AddScreenshot(s Screenshot) bool {
	for _, existing := range e.Screenshots {
		if existing.ID == s.ID {
			return false
		}
	}
	e.Screenshots = append(e.Screenshots, s)
	return true
}

// ClampProgress bounds a progress value to 0..100.
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
