package log

import "sync"

// Record is one message captured by a Recorder.
type Record struct {
	Level   Level
	Message string
	Args    []any
}

// Recorder is a Logger that keeps every record in memory. Tests use it to
// check that a component reported a condition without failing.
type Recorder struct {
	mu      *sync.Mutex
	records *[]Record
	attrs   []any
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, records: &[]Record{}}
}

func (r *Recorder) add(level Level, msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append(append([]any{}, r.attrs...), args...)
	*r.records = append(*r.records, Record{Level: level, Message: msg, Args: all})
}

func (r *Recorder) Debug(msg string, args ...any) { r.add(LevelDebug, msg, args) }
func (r *Recorder) Info(msg string, args ...any)  { r.add(LevelInfo, msg, args) }
func (r *Recorder) Warn(msg string, args ...any)  { r.add(LevelWarn, msg, args) }
func (r *Recorder) Error(msg string, args ...any) { r.add(LevelError, msg, args) }

// With returns a Recorder sharing the same record list.
func (r *Recorder) With(args ...any) Logger {
	return &Recorder{
		mu:      r.mu,
		records: r.records,
		attrs:   append(append([]any{}, r.attrs...), args...),
	}
}

// Records returns a copy of the captured records.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), (*r.records)...)
}

// Messages returns the captured messages at or above level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, rec := range r.Records() {
		if rec.Level >= level {
			out = append(out, rec.Message)
		}
	}
	return out
}
