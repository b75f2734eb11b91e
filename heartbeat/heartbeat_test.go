package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func running(observed time.Time) *execview.Execution {
	return &execview.Execution{
		ID:            "e1",
		Status:        execview.StatusRunning,
		StartedAt:     t0.Add(-time.Minute),
		LastHeartbeat: &execview.Heartbeat{Step: "click", ObservedAt: observed},
	}
}

func TestThresholds(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want State
	}{
		{0, StateHealthy},
		{7900 * time.Millisecond, StateHealthy},
		{8 * time.Second, StateDelayed},
		{14900 * time.Millisecond, StateDelayed},
		{15 * time.Second, StateStalled},
		{time.Hour, StateStalled},
	}
	for _, tc := range tests {
		t.Run(tc.age.String(), func(t *testing.T) {
			r := Evaluate(running(t0), t0.Add(tc.age))
			require.Equal(t, tc.want, r.State)
			require.Equal(t, tc.age, r.Age)
			require.Equal(t, "click", r.Step)
		})
	}
}

func TestNegativeAgeClampsToZero(t *testing.T) {
	r := Evaluate(running(t0.Add(5*time.Second)), t0)
	require.Equal(t, time.Duration(0), r.Age)
	require.Equal(t, StateHealthy, r.State)
}

func TestIdleAndAwaiting(t *testing.T) {
	require.Equal(t, StateIdle, Evaluate(nil, t0).State)

	pending := &execview.Execution{ID: "e1", Status: execview.StatusPending, StartedAt: t0}
	require.Equal(t, StateIdle, Evaluate(pending, t0).State)

	started := &execview.Execution{ID: "e1", Status: execview.StatusRunning, StartedAt: t0.Add(-3 * time.Second)}
	r := Evaluate(started, t0)
	require.Equal(t, StateAwaiting, r.State)
	require.Equal(t, 3*time.Second, r.Age)
	require.Equal(t, started.StartedAt, r.LastActivity)
}

func TestLastActivityFallsBackToCompletion(t *testing.T) {
	done := t0.Add(-2 * time.Second)
	exec := &execview.Execution{
		ID: "e1", Status: execview.StatusCompleted,
		StartedAt: t0.Add(-time.Minute), CompletedAt: &done,
	}
	r := Evaluate(exec, t0)
	require.Equal(t, done, r.LastActivity)
	require.True(t, r.Final)
	require.Equal(t, StateIdle, r.State)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type execHolder struct {
	mu   sync.Mutex
	exec *execview.Execution
}

func (h *execHolder) get() *execview.Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exec.Clone()
}

func (h *execHolder) set(fn func(*execview.Execution)) {
	h.mu.Lock()
	fn(h.exec)
	h.mu.Unlock()
}

func TestMonitorTerminalFreeze(t *testing.T) {
	clock := &fakeClock{now: t0}
	holder := &execHolder{exec: running(t0)}
	var readings []Reading
	m := NewMonitor(holder.get, Options{
		Now:       clock.Now,
		OnReading: func(r Reading) { readings = append(readings, r) },
	})

	require.Equal(t, StateHealthy, m.Tick().State)
	clock.Advance(9 * time.Second)
	require.Equal(t, StateDelayed, m.Tick().State)

	holder.set(func(e *execview.Execution) {
		done := clock.Now()
		e.Status = execview.StatusCompleted
		e.CompletedAt = &done
	})
	frozen := m.Tick()
	require.True(t, frozen.Final)
	require.Equal(t, StateDelayed, frozen.State)
	require.Equal(t, 9*time.Second, frozen.Age)

	clock.Advance(time.Minute)
	require.Equal(t, frozen, m.Tick())
	last, ok := m.Reading()
	require.True(t, ok)
	require.Equal(t, frozen, last)
	require.Len(t, readings, 3)
}

func TestMonitorResetsForNewExecution(t *testing.T) {
	clock := &fakeClock{now: t0}
	holder := &execHolder{exec: running(t0)}
	m := NewMonitor(holder.get, Options{Now: clock.Now})

	m.Tick()
	holder.set(func(e *execview.Execution) { e.Status = execview.StatusFailed })
	require.True(t, m.Tick().Final)

	holder.set(func(e *execview.Execution) {
		e.ID = "e2"
		e.Status = execview.StatusRunning
		e.LastHeartbeat = nil
	})
	r := m.Tick()
	require.False(t, r.Final)
	require.Equal(t, "e2", r.ExecutionID)
	require.Equal(t, StateAwaiting, r.State)
}

func TestMonitorStartStop(t *testing.T) {
	holder := &execHolder{exec: running(time.Now())}
	ticks := make(chan Reading, 64)
	m := NewMonitor(holder.get, Options{
		Interval:  2 * time.Millisecond,
		OnReading: func(r Reading) {
			select {
			case ticks <- r:
			default:
			}
		},
	})
	m.Start(context.Background())
	m.Start(context.Background())
	require.True(t, m.Running())

	for range 3 {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("no tick")
		}
	}
	m.Stop()
	require.False(t, m.Running())
}

func TestMonitorStopsItselfWhenTerminal(t *testing.T) {
	holder := &execHolder{exec: running(time.Now())}
	m := NewMonitor(holder.get, Options{Interval: 2 * time.Millisecond})
	m.Start(context.Background())

	holder.set(func(e *execview.Execution) {
		now := time.Now()
		e.Status = execview.StatusCancelled
		e.CompletedAt = &now
	})
	require.Eventually(t, func() bool { return !m.Running() }, time.Second, time.Millisecond)
	r, ok := m.Reading()
	require.True(t, ok)
	require.True(t, r.Final)
}
