package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/deepnoodle-ai/execview"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	calls           []string
	active          map[string]bool
	maxActive       int
	failUnsubscribe map[string]int
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{active: map[string]bool{}, failUnsubscribe: map[string]int{}}
}

func (c *recordingChannel) Subscribe(_ context.Context, id string) error {
	c.calls = append(c.calls, "subscribe:"+id)
	c.active[id] = true
	c.maxActive = max(c.maxActive, len(c.active))
	return nil
}

func (c *recordingChannel) Unsubscribe(_ context.Context, id string) error {
	c.calls = append(c.calls, "unsubscribe:"+id)
	if c.failUnsubscribe[id] > 0 {
		c.failUnsubscribe[id]--
		return errors.New("connection reset")
	}
	delete(c.active, id)
	return nil
}

func TestSubscriptionExclusivity(t *testing.T) {
	ctx := context.Background()
	ch := newRecordingChannel()
	m := New(ch, nil)

	require.NoError(t, m.Sync(ctx, "X", execview.StatusRunning))
	require.NoError(t, m.Sync(ctx, "Y", execview.StatusRunning))

	require.Equal(t, []string{"subscribe:X", "unsubscribe:X", "subscribe:Y"}, ch.calls)
	require.Equal(t, 1, ch.maxActive)
	require.Equal(t, "Y", m.Subscribed())
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ch := newRecordingChannel()
	m := New(ch, nil)

	for range 3 {
		require.NoError(t, m.Sync(ctx, "X", execview.StatusRunning))
	}
	for range 3 {
		require.NoError(t, m.Sync(ctx, "X", execview.StatusCompleted))
	}
	for range 2 {
		require.NoError(t, m.Sync(ctx, "", ""))
	}
	require.Equal(t, []string{"subscribe:X", "unsubscribe:X"}, ch.calls)
	require.Empty(t, m.Subscribed())
}

func TestOnlyRunningExecutionsAreSubscribed(t *testing.T) {
	ctx := context.Background()
	for _, status := range []execview.Status{
		execview.StatusPending, execview.StatusCompleted, execview.StatusFailed, execview.StatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			ch := newRecordingChannel()
			m := New(ch, nil)
			require.NoError(t, m.Sync(ctx, "X", status))
			require.Empty(t, ch.calls)
		})
	}
}

func TestPendingThenRunning(t *testing.T) {
	ctx := context.Background()
	ch := newRecordingChannel()
	m := New(ch, nil)

	require.NoError(t, m.Sync(ctx, "X", execview.StatusPending))
	require.NoError(t, m.Sync(ctx, "X", execview.StatusRunning))
	require.NoError(t, m.Sync(ctx, "Y", execview.StatusPending))
	require.Equal(t, []string{"subscribe:X", "unsubscribe:X"}, ch.calls)
}

func TestCloseAlwaysUnsubscribes(t *testing.T) {
	ctx := context.Background()
	ch := newRecordingChannel()
	m := New(ch, nil)

	require.NoError(t, m.Sync(ctx, "X", execview.StatusRunning))
	require.NoError(t, m.Close(ctx))
	require.NoError(t, m.Close(ctx))
	require.Equal(t, []string{"subscribe:X", "unsubscribe:X"}, ch.calls)
	require.Empty(t, ch.active)
}

func TestFailedUnsubscribeIsRetriedOnClose(t *testing.T) {
	ctx := context.Background()
	ch := newRecordingChannel()
	ch.failUnsubscribe["X"] = 1
	m := New(ch, nil)

	require.NoError(t, m.Sync(ctx, "X", execview.StatusRunning))
	err := m.Sync(ctx, "Y", execview.StatusRunning)
	require.ErrorContains(t, err, "unsubscribing from X")
	require.Equal(t, "Y", m.Subscribed())

	// The switch completed, so a repeated sync is a no-op.
	require.NoError(t, m.Sync(ctx, "Y", execview.StatusRunning))
	require.NoError(t, m.Close(ctx))

	require.Equal(t, []string{
		"subscribe:X", "unsubscribe:X",
		"subscribe:Y",
		"unsubscribe:Y", "unsubscribe:X",
	}, ch.calls)
	require.Empty(t, ch.active)
}

func TestSwitchKeepsFollowingAfterFailedUnsubscribes(t *testing.T) {
	ctx := context.Background()
	ch := newRecordingChannel()
	ch.failUnsubscribe["X"] = 1
	ch.failUnsubscribe["Y"] = 1
	m := New(ch, nil)

	require.NoError(t, m.Sync(ctx, "X", execview.StatusRunning))
	require.Error(t, m.Sync(ctx, "Y", execview.StatusRunning))
	require.Error(t, m.Sync(ctx, "Z", execview.StatusRunning))
	require.Equal(t, "Z", m.Subscribed())

	require.NoError(t, m.Close(ctx))
	require.Equal(t, []string{
		"subscribe:X", "unsubscribe:X",
		"subscribe:Y", "unsubscribe:Y",
		"subscribe:Z",
		"unsubscribe:Z", "unsubscribe:X", "unsubscribe:Y",
	}, ch.calls)
	require.Empty(t, ch.active)
}

func TestSubscribeError(t *testing.T) {
	ctx := context.Background()
	m := New(failingChannel{}, nil)
	err := m.Sync(ctx, "X", execview.StatusRunning)
	require.ErrorContains(t, err, "subscribing to X")
	require.Empty(t, m.Subscribed())
}

type failingChannel struct{}

func (failingChannel) Subscribe(context.Context, string) error {
	return fmt.Errorf("closed")
}

func (failingChannel) Unsubscribe(context.Context, string) error {
	return fmt.Errorf("closed")
}
