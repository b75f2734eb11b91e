// Package subscription keeps at most one push-channel subscription open, for
// the execution currently being viewed while it is running.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/log"
)

// Channel is the control side of a push channel.
type Channel interface {
	Subscribe(ctx context.Context, executionID string) error
	Unsubscribe(ctx context.Context, executionID string) error
}

// Manager is a two-state machine: unsubscribed, or subscribed to one
// execution. Every transition issues exactly one unsubscribe and/or
// subscribe on the channel.
type Manager struct {
	channel Channel
	logger  log.Logger

	mu         sync.Mutex
	subscribed string
	// leaked holds executions whose unsubscribe failed. Close retries them.
	leaked []string
}

// New returns an unsubscribed Manager.
func New(channel Channel, logger log.Logger) *Manager {
	return &Manager{channel: channel, logger: log.OrNull(logger)}
}

// Subscribed returns the execution currently subscribed to, or "".
func (m *Manager) Subscribed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// Sync reconciles the subscription with the viewed execution. An empty
// executionID means nothing is being viewed. The subscription is held only
// while status is running; switching executions unsubscribes from the old
// one before subscribing to the new one. If that unsubscribe fails, the old
// execution is left for Close to retry and the new one is still subscribed;
// the unsubscribe error is returned.
func (m *Manager) Sync(ctx context.Context, executionID string, status execview.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := ""
	if executionID != "" && status == execview.StatusRunning {
		want = executionID
	}
	if want == m.subscribed {
		return nil
	}
	var unsubErr error
	if m.subscribed != "" {
		unsubErr = m.unsubscribe(ctx)
	}
	if want == "" {
		return unsubErr
	}
	if err := m.channel.Subscribe(ctx, want); err != nil {
		return errors.Join(unsubErr, fmt.Errorf("subscribing to %s: %w", want, err))
	}
	m.subscribed = want
	m.logger.Debug("subscribed", "execution_id", want)
	return unsubErr
}

// unsubscribe leaves the current subscription. The manager moves to the
// unsubscribed state even on failure so that it never believes it holds two
// subscriptions; the failed execution is retried by Close.
func (m *Manager) unsubscribe(ctx context.Context) error {
	id := m.subscribed
	m.subscribed = ""
	if err := m.channel.Unsubscribe(ctx, id); err != nil {
		if !slices.Contains(m.leaked, id) {
			m.leaked = append(m.leaked, id)
		}
		m.logger.Warn("unsubscribe failed", "execution_id", id, "error", err)
		return fmt.Errorf("unsubscribing from %s: %w", id, err)
	}
	m.forget(id)
	m.logger.Debug("unsubscribed", "execution_id", id)
	return nil
}

// Close tears down the subscription regardless of status, and retries any
// unsubscribe that previously failed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	leaked := slices.Clone(m.leaked)
	var firstErr error
	if m.subscribed != "" {
		firstErr = m.unsubscribe(ctx)
	}
	for _, id := range leaked {
		if err := m.channel.Unsubscribe(ctx, id); err != nil {
			m.logger.Warn("unsubscribe retry failed", "execution_id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("unsubscribing from %s: %w", id, err)
			}
			continue
		}
		m.forget(id)
	}
	return firstErr
}

func (m *Manager) forget(id string) {
	m.leaked = slices.DeleteFunc(m.leaked, func(l string) bool { return l == id })
}
