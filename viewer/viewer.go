// Package viewer owns everything needed to watch one execution at a time:
// the state store, the event normalizer, the push-channel subscription, the
// heartbeat monitor and the periodic timeline refresh.
package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/event"
	"github.com/deepnoodle-ai/execview/heartbeat"
	"github.com/deepnoodle-ai/execview/log"
	"github.com/deepnoodle-ai/execview/schedule"
	"github.com/deepnoodle-ai/execview/store"
	"github.com/deepnoodle-ai/execview/subscription"
)

// Options configures a Viewer.
type Options struct {
	Backend store.Backend

	// Channel receives subscribe and unsubscribe requests. Without one the
	// viewer relies on polling alone.
	Channel subscription.Channel

	Logger log.Logger
	Now    func() time.Time

	// PollInterval is how often the timeline is refreshed while the
	// execution is not terminal. Zero disables polling.
	PollInterval      time.Duration
	HeartbeatInterval time.Duration

	// OnChange is called with a copy of the execution after every change.
	OnChange func(*execview.Execution)

	// OnHeartbeat is called with every heartbeat reading.
	OnHeartbeat func(heartbeat.Reading)
}

// Viewer is the explicit owner of one viewing scope. Create it with New and
// release it with Close.
type Viewer struct {
	store        *store.Store
	normalizer   *event.Normalizer
	subs         *subscription.Manager
	monitor      *heartbeat.Monitor
	logger       log.Logger
	pollInterval time.Duration
	onChange     func(*execview.Execution)

	ctx     context.Context
	cancel  context.CancelFunc
	unwatch func()

	changeMu sync.Mutex

	mu     sync.Mutex
	poll   *schedule.Lease
	pollID string
	closed bool
}

// New returns a Viewer with an empty store.
func New(opts Options) *Viewer {
	logger := log.OrNull(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{
		store:        store.New(opts.Backend, store.Options{Logger: logger, Now: now}),
		normalizer:   event.NewNormalizer(event.Options{Logger: logger, Now: now}),
		logger:       logger,
		pollInterval: opts.PollInterval,
		onChange:     opts.OnChange,
		ctx:          ctx,
		cancel:       cancel,
	}
	if opts.Channel != nil {
		v.subs = subscription.New(opts.Channel, logger)
	}
	v.monitor = heartbeat.NewMonitor(v.store.Current, heartbeat.Options{
		Interval:  opts.HeartbeatInterval,
		Now:       now,
		OnReading: opts.OnHeartbeat,
		Logger:    logger,
	})
	v.unwatch = v.store.Watch(v.changed)
	return v
}

// Store returns the underlying store.
func (v *Viewer) Store() *store.Store {
	return v.store
}

// Current returns a copy of the execution being viewed, or nil.
func (v *Viewer) Current() *execview.Execution {
	return v.store.Current()
}

// Heartbeat returns the latest heartbeat reading.
func (v *Viewer) Heartbeat() (heartbeat.Reading, bool) {
	return v.monitor.Reading()
}

// Open starts viewing an existing execution.
func (v *Viewer) Open(ctx context.Context, executionID string) error {
	return v.store.LoadExecution(ctx, executionID)
}

// Start runs a workflow and starts viewing the new execution.
func (v *Viewer) Start(ctx context.Context, workflowID, artifactProfile string) (*execview.Execution, error) {
	return v.store.Start(ctx, workflowID, artifactProfile)
}

// Stop cancels the execution being viewed.
func (v *Viewer) Stop(ctx context.Context) error {
	current := v.store.Current()
	if current == nil {
		return nil
	}
	return v.store.Stop(ctx, current.ID)
}

// HandleMessage interprets one push-channel payload and applies it to the
// execution being viewed. It reports whether the execution changed.
func (v *Viewer) HandleMessage(payload []byte) bool {
	current := v.store.Current()
	if current == nil {
		return false
	}
	ev, ok := v.normalizer.Normalize(current.ID, payload)
	if !ok {
		return false
	}
	return v.store.Apply(ev)
}

// changed reacts to every store change: it keeps the subscription, the
// heartbeat monitor and the timeline poll in step with the execution.
// Notifications from concurrent mutations can arrive out of order, so the
// copy passed in is ignored in favor of the store's current state.
func (v *Viewer) changed(*execview.Execution) {
	v.changeMu.Lock()
	defer v.changeMu.Unlock()

	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	exec := v.store.Current()

	var id string
	var status execview.Status
	if exec != nil {
		id, status = exec.ID, exec.Status
	}
	if v.subs != nil {
		if err := v.subs.Sync(v.ctx, id, status); err != nil {
			v.logger.Warn("updating subscription failed", "execution_id", id, "error", err)
		}
	}

	switch {
	case exec == nil:
		v.monitor.Stop()
	case status == execview.StatusRunning:
		v.monitor.Start(v.ctx)
	case status.IsTerminal():
		v.monitor.Tick()
		v.monitor.Stop()
	}
	v.updatePoll(exec)

	if v.onChange != nil {
		v.onChange(exec)
	}
}

func (v *Viewer) updatePoll(exec *execview.Execution) {
	v.mu.Lock()
	defer v.mu.Unlock()

	want := ""
	if exec != nil && !exec.IsTerminal() && v.pollInterval > 0 {
		want = exec.ID
	}
	if v.poll != nil && !v.poll.Stopped() && v.pollID == want {
		return
	}
	if v.poll != nil {
		v.poll.Stop()
		v.poll = nil
	}
	v.pollID = want
	if want == "" {
		return
	}
	v.poll = schedule.Every(v.ctx, v.pollInterval, func(ctx context.Context) bool {
		if err := v.store.RefreshTimeline(ctx, want); err != nil {
			v.logger.Debug("timeline poll failed", "execution_id", want, "error", err)
		}
		return true
	})
}

// Polling reports whether the timeline poll is active.
func (v *Viewer) Polling() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.poll != nil && !v.poll.Stopped()
}

// Close stops background work and tears down the subscription regardless of
// the execution's status.
func (v *Viewer) Close(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	poll := v.poll
	v.poll = nil
	v.mu.Unlock()

	v.unwatch()
	if poll != nil {
		poll.Stop()
	}
	v.monitor.Stop()
	v.store.Wait()
	v.cancel()
	if v.subs != nil {
		return v.subs.Close(ctx)
	}
	return nil
}
