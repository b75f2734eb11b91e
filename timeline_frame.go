package execview

import (
	"sort"
	"time"
)

// Point is a position in page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is the rectangle of a page element.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FrameScreenshot references the screenshot captured for a step.
type FrameScreenshot struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// Assertion is the outcome of an assertion step.
type Assertion struct {
	Mode          string `json:"mode,omitempty"`
	Selector      string `json:"selector,omitempty"`
	Expected      string `json:"expected,omitempty"`
	Actual        string `json:"actual,omitempty"`
	Success       bool   `json:"success"`
	Negated       bool   `json:"negated,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	Message       string `json:"message,omitempty"`
}

// RetryAttempt is one past attempt of a retried step.
type RetryAttempt struct {
	Attempt  int           `json:"attempt"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// RetryStatus describes the retry configuration and history of a step.
type RetryStatus struct {
	CurrentAttempt int            `json:"current_attempt"`
	MaxAttempts    int            `json:"max_attempts"`
	Configured     bool           `json:"configured"`
	Delay          time.Duration  `json:"delay,omitempty"`
	BackoffFactor  float64        `json:"backoff_factor,omitempty"`
	History        []RetryAttempt `json:"history,omitempty"`
}

// ArtifactRef is a weak reference to an artifact captured during a step.
type ArtifactRef struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Label        string `json:"label,omitempty"`
	StorageURL   string `json:"storage_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// TimelineFrame is the reconciled record of one executed step.
type TimelineFrame struct {
	StepIndex         int              `json:"step_index"`
	NodeID            string           `json:"node_id,omitempty"`
	StepType          string           `json:"step_type,omitempty"`
	Status            string           `json:"status,omitempty"`
	Success           bool             `json:"success"`
	Progress          int              `json:"progress,omitempty"`
	Duration          time.Duration    `json:"duration,omitempty"`
	TotalDuration     time.Duration    `json:"total_duration,omitempty"`
	FinalURL          string           `json:"final_url,omitempty"`
	Error             string           `json:"error,omitempty"`
	Screenshot        *FrameScreenshot `json:"screenshot,omitempty"`
	Assertion         *Assertion       `json:"assertion,omitempty"`
	Retry             *RetryStatus     `json:"retry,omitempty"`
	Artifacts         []ArtifactRef    `json:"artifacts,omitempty"`
	Cursor            *Point           `json:"cursor,omitempty"`
	ElementBox        *BoundingBox     `json:"element_box,omitempty"`
	ConsoleLogCount   int              `json:"console_log_count,omitempty"`
	NetworkEventCount int              `json:"network_event_count,omitempty"`
}

// Clone returns a deep copy of the frame.
func (f TimelineFrame) Clone() TimelineFrame {
	c := f
	if f.Screenshot != nil {
		s := *f.Screenshot
		c.Screenshot = &s
	}
	if f.Assertion != nil {
		a := *f.Assertion
		c.Assertion = &a
	}
	if f.Retry != nil {
		r := *f.Retry
		r.History = append([]RetryAttempt(nil), f.Retry.History...)
		c.Retry = &r
	}
	if f.Artifacts != nil {
		c.Artifacts = append([]ArtifactRef(nil), f.Artifacts...)
	}
	if f.Cursor != nil {
		p := *f.Cursor
		c.Cursor = &p
	}
	if f.ElementBox != nil {
		b := *f.ElementBox
		c.ElementBox = &b
	}
	return c
}

// SortFrames orders frames by step index in place.
func SortFrames(frames []TimelineFrame) {
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].StepIndex < frames[j].StepIndex
	})
}

// UpsertFrame returns frames with f replacing any frame that has the same
// step index, or inserted in step order if there is none.
func UpsertFrame(frames []TimelineFrame, f TimelineFrame) []TimelineFrame {
	for i := range frames {
		if frames[i].StepIndex == f.StepIndex {
			frames[i] = f
			return frames
		}
	}
	i := sort.Search(len(frames), func(i int) bool {
		return frames[i].StepIndex > f.StepIndex
	})
	frames = append(frames, TimelineFrame{})
	copy(frames[i+1:], frames[i:])
	frames[i] = f
	return frames
}
