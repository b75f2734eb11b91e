package execview

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarn    LogLevel = "warn"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
)

// ParseLogLevel maps a loosely spelled level onto a LogLevel. Unknown values
// map to info.
func ParseLogLevel(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug", "trace":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error", "err", "fatal":
		return LogLevelError
	case "success", "ok":
		return LogLevelSuccess
	default:
		return LogLevelInfo
	}
}

// LogEntry is one line of an execution log.
type LogEntry struct {
	ID        string    `json:"id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	StepName  string    `json:"step_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// idNamespace scopes all derived identifiers.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://deepnoodle.ai/execview"))

// DeriveLogID returns a stable identifier for a log line that arrived
// without one. The same step, message and timestamp always yield the same ID,
// so the line can be recognized when it is delivered twice.
func DeriveLogID(stepName, message string, ts time.Time) string {
	key := stepName + "\x00" + message + "\x00" + strconv.FormatInt(ts.UTC().UnixMilli(), 10)
	return "log-" + uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// DeriveArtifactID returns a stable identifier for an artifact that arrived
// without one.
func DeriveArtifactID(stepIndex int, kind string, position int) string {
	key := strconv.Itoa(stepIndex) + "\x00" + kind + "\x00" + strconv.Itoa(position)
	return "artifact-" + uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// EnsureID fills in a derived ID if the entry has none.
func (l *LogEntry) EnsureID() {
	if l.ID == "" {
		l.ID = DeriveLogID(l.StepName, l.Message, l.Timestamp)
	}
}

// MergeLogs combines two log lists, dropping entries whose ID was already
// seen, and returns the result in chronological order. Entries with equal
// timestamps keep their relative order (existing entries first).
func MergeLogs(existing, incoming []LogEntry) []LogEntry {
	merged := make([]LogEntry, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, list := range [][]LogEntry{existing, incoming} {
		for _, entry := range list {
			entry.EnsureID()
			if _, ok := seen[entry.ID]; ok {
				continue
			}
			seen[entry.ID] = struct{}{}
			merged = append(merged, entry)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}
