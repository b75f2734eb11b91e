package execview

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// AssertionRecord is the wire form of an assertion outcome.
type AssertionRecord struct {
	Mode          string `json:"mode,omitempty"`
	Selector      string `json:"selector,omitempty"`
	Expected      any    `json:"expected,omitempty"`
	Actual        any    `json:"actual,omitempty"`
	Success       any    `json:"success,omitempty"`
	Negated       any    `json:"negated,omitempty"`
	CaseSensitive any    `json:"case_sensitive,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Assertion converts the record. A nil record yields nil.
func (r *AssertionRecord) Assertion() *Assertion {
	if r == nil {
		return nil
	}
	return &Assertion{
		Mode:          r.Mode,
		Selector:      r.Selector,
		Expected:      Stringify(r.Expected),
		Actual:        Stringify(r.Actual),
		Success:       cast.ToBool(r.Success),
		Negated:       cast.ToBool(r.Negated),
		CaseSensitive: cast.ToBool(r.CaseSensitive),
		Message:       r.Message,
	}
}

// RetryAttemptRecord is the wire form of one past retry attempt.
type RetryAttemptRecord struct {
	Attempt    any    `json:"attempt"`
	Success    any    `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS any    `json:"duration_ms,omitempty"`
}

// RetryRecord is the wire form of a step's retry state.
type RetryRecord struct {
	CurrentAttempt any                  `json:"current_attempt,omitempty"`
	MaxAttempts    any                  `json:"max_attempts,omitempty"`
	Configured     any                  `json:"configured,omitempty"`
	DelayMS        any                  `json:"delay_ms,omitempty"`
	BackoffFactor  any                  `json:"backoff_factor,omitempty"`
	History        []RetryAttemptRecord `json:"history,omitempty"`
}

// Status converts the record, keeping history in source order. When the
// record does not say whether retries were configured, more than one allowed
// attempt implies they were.
func (r *RetryRecord) Status() *RetryStatus {
	if r == nil {
		return nil
	}
	maxAttempts := cast.ToInt(r.MaxAttempts)
	configured := maxAttempts > 1
	if r.Configured != nil {
		configured = cast.ToBool(r.Configured)
	}
	status := &RetryStatus{
		CurrentAttempt: cast.ToInt(r.CurrentAttempt),
		MaxAttempts:    maxAttempts,
		Configured:     configured,
		Delay:          ParseDurationMillis(r.DelayMS),
		BackoffFactor:  cast.ToFloat64(r.BackoffFactor),
	}
	for _, h := range r.History {
		status.History = append(status.History, RetryAttempt{
			Attempt:  cast.ToInt(h.Attempt),
			Success:  cast.ToBool(h.Success),
			Error:    h.Error,
			Duration: ParseDurationMillis(h.DurationMS),
		})
	}
	return status
}

// ArtifactRecord is the wire form of an artifact reference.
type ArtifactRecord struct {
	ID           string `json:"id,omitempty"`
	Type         string `json:"type,omitempty"`
	ArtifactType string `json:"artifact_type,omitempty"`
	Label        string `json:"label,omitempty"`
	StorageURL   string `json:"storage_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	SizeBytes    any    `json:"size_bytes,omitempty"`
}

// Ref converts the record. kind is used when the record has no type, and
// the ID is synthesized from stepIndex, kind and position when missing.
func (r *ArtifactRecord) Ref(stepIndex int, kind string, position int) ArtifactRef {
	typ := r.Type
	if typ == "" {
		typ = r.ArtifactType
	}
	if typ == "" {
		typ = kind
	}
	id := r.ID
	if id == "" {
		id = DeriveArtifactID(stepIndex, typ, position)
	}
	return ArtifactRef{
		ID:           id,
		Type:         typ,
		Label:        r.Label,
		StorageURL:   r.StorageURL,
		ThumbnailURL: r.ThumbnailURL,
		SizeBytes:    cast.ToInt64(r.SizeBytes),
	}
}

// FrameScreenshotRecord is the wire form of a step screenshot reference.
type FrameScreenshotRecord struct {
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Width        any    `json:"width,omitempty"`
	Height       any    `json:"height,omitempty"`
}

// FrameScreenshot converts the record. A nil record or one without a URL
// yields nil.
func (r *FrameScreenshotRecord) FrameScreenshot() *FrameScreenshot {
	if r == nil || r.URL == "" {
		return nil
	}
	return &FrameScreenshot{
		URL:          r.URL,
		ThumbnailURL: r.ThumbnailURL,
		Width:        cast.ToInt(r.Width),
		Height:       cast.ToInt(r.Height),
	}
}

// Stringify renders a loosely typed wire value as text. Strings pass through,
// scalars use their natural form and anything else is encoded as JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, float64, float32, int, int64, int32, json.Number:
		return cast.ToString(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
