package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/log"
	"github.com/deepnoodle-ai/execview/schedule"
)

// DefaultInterval is how often a Monitor recomputes while running.
const DefaultInterval = time.Second

// Source returns the execution to evaluate, or nil if there is none. The
// Monitor never mutates what it returns.
type Source func() *execview.Execution

// Options configures a Monitor.
type Options struct {
	Interval  time.Duration
	Now       func() time.Time
	OnReading func(Reading)
	Logger    log.Logger
}

// Monitor recomputes the liveness of the current execution on a fixed tick
// so staleness is observable without new events. When the execution becomes
// terminal the last reading is frozen, marked final and the tick stops.
type Monitor struct {
	source    Source
	interval  time.Duration
	now       func() time.Time
	onReading func(Reading)
	logger    log.Logger

	mu    sync.Mutex
	lease *schedule.Lease
	last  *Reading
}

// NewMonitor returns a stopped Monitor reading from source.
func NewMonitor(source Source, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		source:    source,
		interval:  opts.Interval,
		now:       opts.Now,
		onReading: opts.OnReading,
		logger:    log.OrNull(opts.Logger),
	}
}

// Start evaluates immediately and then once per interval until the
// execution is terminal, Stop is called or ctx is done. Starting a running
// Monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.lease != nil && !m.lease.Stopped() {
		m.mu.Unlock()
		return
	}
	m.lease = schedule.Every(ctx, m.interval, func(context.Context) bool {
		return !m.Tick().Final
	})
	m.mu.Unlock()

	if m.Tick().Final {
		m.Stop()
	}
}

// Stop cancels the tick. It is safe to call at any time.
func (m *Monitor) Stop() {
	m.mu.Lock()
	lease := m.lease
	m.mu.Unlock()
	if lease != nil {
		lease.Stop()
	}
}

// Running reports whether the tick is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lease != nil && !m.lease.Stopped()
}

// Reading returns the most recent reading, if any.
func (m *Monitor) Reading() (Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Reading{}, false
	}
	return *m.last, true
}

// Tick evaluates the current execution once and returns the reading. Once a
// reading is final it is returned unchanged until a different execution is
// observed.
func (m *Monitor) Tick() Reading {
	exec := m.source()
	now := m.now()

	m.mu.Lock()
	var id string
	if exec != nil {
		id = exec.ID
	}
	if m.last != nil && m.last.ExecutionID != id {
		m.last = nil
	}
	if m.last != nil && m.last.Final {
		r := *m.last
		m.mu.Unlock()
		return r
	}

	var r Reading
	if exec != nil && exec.IsTerminal() && m.last != nil {
		r = *m.last
		r.Final = true
		m.logger.Debug("heartbeat frozen",
			"execution_id", id, "state", r.State, "status", exec.Status)
	} else {
		r = Evaluate(exec, now)
	}
	changed := m.last == nil || m.last.State != r.State || m.last.Final != r.Final
	m.last = &r
	m.mu.Unlock()

	if changed {
		m.logger.Debug("heartbeat state", "execution_id", id, "state", r.State, "age", r.Age)
	}
	if m.onReading != nil {
		m.onReading(r)
	}
	return r
}
