package viewer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/api"
	"github.com/deepnoodle-ai/execview/heartbeat"
	"github.com/deepnoodle-ai/execview/timeline"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu         sync.Mutex
	executions map[string]*execview.Execution
	timelines  map[string]*timeline.Snapshot
	refreshes  int
}

func newFakeBackend(execs ...*execview.Execution) *fakeBackend {
	b := &fakeBackend{executions: map[string]*execview.Execution{}, timelines: map[string]*timeline.Snapshot{}}
	for _, e := range execs {
		b.executions[e.ID] = e
	}
	return b
}

func (b *fakeBackend) Execute(_ context.Context, workflowID, _ string) (*execview.Execution, error) {
	return &execview.Execution{ID: "new", WorkflowID: workflowID, Status: execview.StatusPending}, nil
}

func (b *fakeBackend) Stop(context.Context, string) error { return nil }

func (b *fakeBackend) Executions(context.Context, string) ([]*execview.Execution, error) {
	return nil, nil
}

func (b *fakeBackend) Execution(_ context.Context, id string) (*execview.Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.executions[id]
	if !ok {
		return nil, api.NewStatusError(http.StatusNotFound, http.MethodGet, "/executions/"+id, "")
	}
	return e.Clone(), nil
}

func (b *fakeBackend) Screenshots(context.Context, string) ([]execview.Screenshot, error) {
	return nil, nil
}

func (b *fakeBackend) Timeline(_ context.Context, id string) (*timeline.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if snap, ok := b.timelines[id]; ok {
		return snap, nil
	}
	return &timeline.Snapshot{ExecutionID: id}, nil
}

func (b *fakeBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

type fakeChannel struct {
	mu    sync.Mutex
	calls []string

	// failUnsubscribe makes the next unsubscribe of an execution fail.
	failUnsubscribe map[string]bool
}

func (c *fakeChannel) Subscribe(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "subscribe:"+id)
	return nil
}

func (c *fakeChannel) Unsubscribe(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "unsubscribe:"+id)
	if c.failUnsubscribe[id] {
		delete(c.failUnsubscribe, id)
		return errors.New("connection reset")
	}
	return nil
}

func (c *fakeChannel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func running(id string) *execview.Execution {
	return &execview.Execution{ID: id, Status: execview.StatusRunning, StartedAt: time.Now()}
}

func TestViewerLifecycle(t *testing.T) {
	backend := newFakeBackend(running("E"))
	channel := &fakeChannel{}
	var mu sync.Mutex
	var readings []heartbeat.Reading
	v := New(Options{
		Backend:           backend,
		Channel:           channel,
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
		OnHeartbeat: func(r heartbeat.Reading) {
			mu.Lock()
			readings = append(readings, r)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, "E"))
	require.Equal(t, []string{"subscribe:E"}, channel.Calls())
	require.True(t, v.Polling())
	require.Eventually(t, func() bool { return backend.refreshCount() >= 3 }, 2*time.Second, time.Millisecond)

	require.True(t, v.HandleMessage([]byte(`{"type":"progress","progress":42}`)))
	require.Equal(t, 42, v.Current().Progress)
	require.False(t, v.HandleMessage([]byte(`{"type":"progress","execution_id":"other","progress":1}`)))
	require.False(t, v.HandleMessage([]byte(`not json`)))

	require.True(t, v.HandleMessage([]byte(`{"execution_id":"E","event":{"type":"step.heartbeat","step_name":"wait"}}`)))
	require.True(t, v.HandleMessage([]byte(`{"type":"completed"}`)))

	require.Equal(t, []string{"subscribe:E", "unsubscribe:E"}, channel.Calls())
	require.False(t, v.Polling())
	r, ok := v.Heartbeat()
	require.True(t, ok)
	require.True(t, r.Final)

	mu.Lock()
	require.NotEmpty(t, readings)
	mu.Unlock()

	require.NoError(t, v.Close(ctx))
	require.NoError(t, v.Close(ctx))
	require.Equal(t, []string{"subscribe:E", "unsubscribe:E"}, channel.Calls())
}

func TestViewerSwitchingExecutions(t *testing.T) {
	backend := newFakeBackend(running("X"), running("Y"))
	channel := &fakeChannel{}
	v := New(Options{Backend: backend, Channel: channel})
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, "X"))
	require.NoError(t, v.Open(ctx, "Y"))
	require.Equal(t, []string{"subscribe:X", "unsubscribe:X", "subscribe:Y"}, channel.Calls())
	require.False(t, v.Polling())

	require.NoError(t, v.Close(ctx))
	require.Equal(t, []string{"subscribe:X", "unsubscribe:X", "subscribe:Y", "unsubscribe:Y"}, channel.Calls())
}

func TestViewerSwitchSurvivesFailedUnsubscribe(t *testing.T) {
	backend := newFakeBackend(running("X"), running("Y"))
	channel := &fakeChannel{failUnsubscribe: map[string]bool{"X": true}}
	v := New(Options{Backend: backend, Channel: channel})
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, "X"))
	require.NoError(t, v.Open(ctx, "Y"))
	require.Equal(t, []string{"subscribe:X", "unsubscribe:X", "subscribe:Y"}, channel.Calls())

	require.NoError(t, v.Close(ctx))
	require.Equal(t, []string{
		"subscribe:X", "unsubscribe:X", "subscribe:Y",
		"unsubscribe:Y", "unsubscribe:X",
	}, channel.Calls())
}

func TestViewerStartAndStop(t *testing.T) {
	backend := newFakeBackend()
	channel := &fakeChannel{}
	v := New(Options{Backend: backend, Channel: channel})
	ctx := context.Background()
	defer v.Close(ctx)

	exec, err := v.Start(ctx, "wf", "full")
	require.NoError(t, err)
	require.Equal(t, execview.StatusPending, exec.Status)
	require.Empty(t, channel.Calls())

	require.True(t, v.HandleMessage([]byte(`{"execution_id":"new","event":{"type":"execution.started"}}`)))
	require.Equal(t, []string{"subscribe:new"}, channel.Calls())

	require.NoError(t, v.Stop(ctx))
	current := v.Current()
	require.Equal(t, execview.StatusCancelled, current.Status)
	require.NotNil(t, current.PendingOverride)
	require.Equal(t, []string{"subscribe:new", "unsubscribe:new"}, channel.Calls())
}

func TestViewerWithoutChannel(t *testing.T) {
	v := New(Options{Backend: newFakeBackend(running("E"))})
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, "E"))
	require.True(t, v.HandleMessage([]byte(`{"type":"log","message":"hi"}`)))
	require.Len(t, v.Current().Logs, 1)
	require.NoError(t, v.Close(ctx))

	require.Error(t, v.Open(ctx, "missing"))
}
