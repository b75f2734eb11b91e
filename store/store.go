// Package store holds the canonical state of the execution being viewed and
// the list of known executions. It is the only component that mutates an
// execution: snapshots fetched from the backend and events from the push
// channel are both merged here under fixed precedence rules.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/log"
	"github.com/deepnoodle-ai/execview/retry"
	"github.com/deepnoodle-ai/execview/timeline"
)

// CancelledByUser is the error message set by an optimistic Stop.
const CancelledByUser = "Cancelled by user"

// Backend performs the network calls the store needs.
type Backend interface {
	Execute(ctx context.Context, workflowID, artifactProfile string) (*execview.Execution, error)
	Stop(ctx context.Context, executionID string) error
	Executions(ctx context.Context, workflowID string) ([]*execview.Execution, error)
	Execution(ctx context.Context, executionID string) (*execview.Execution, error)
	Screenshots(ctx context.Context, executionID string) ([]execview.Screenshot, error)
	Timeline(ctx context.Context, executionID string) (*timeline.Snapshot, error)
}

// Options configures a Store.
type Options struct {
	Logger log.Logger
	Now    func() time.Time
}

// Store is safe for concurrent use. Network calls are made without holding
// the lock; results are merged in the order the calls return, so every
// mutation is either idempotent or guarded by the execution's identity.
type Store struct {
	backend Backend
	logger  log.Logger
	now     func() time.Time

	mu         sync.Mutex
	current    *execview.Execution
	executions []*execview.Execution
	watchers   map[int]func(*execview.Execution)
	nextWatch  int

	background sync.WaitGroup
}

// New returns an empty Store.
func New(backend Backend, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend:  backend,
		logger:   log.OrNull(opts.Logger),
		now:      now,
		watchers: map[int]func(*execview.Execution){},
	}
}

// Current returns a copy of the current execution, or nil.
func (s *Store) Current() *execview.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Executions returns copies of the known executions.
func (s *Store) Executions() []*execview.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*execview.Execution, len(s.executions))
	for i, e := range s.executions {
		out[i] = e.Clone()
	}
	return out
}

// Watch registers fn to be called with a copy of the current execution after
// every change to it. The returned function unregisters fn.
func (s *Store) Watch(fn func(*execview.Execution)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Reset forgets the current execution and the execution list.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = nil
	s.executions = nil
	watchers := s.watchersLocked()
	s.mu.Unlock()
	notify(watchers, nil)
}

// Wait blocks until background refreshes started by Start have finished.
func (s *Store) Wait() {
	s.background.Wait()
}

// Start runs a workflow and installs the new execution as current. On
// failure nothing is installed. A timeline refresh is started in the
// background; its errors are logged.
func (s *Store) Start(ctx context.Context, workflowID, artifactProfile string) (*execview.Execution, error) {
	exec, err := s.backend.Execute(ctx, workflowID, artifactProfile)
	if err != nil {
		return nil, fmt.Errorf("starting workflow %s: %w", workflowID, err)
	}
	if exec == nil || exec.ID == "" {
		return nil, fmt.Errorf("starting workflow %s: %w", workflowID, execview.ErrMissingID)
	}
	now := s.now()
	if exec.WorkflowID == "" {
		exec.WorkflowID = workflowID
	}
	if exec.Status == "" {
		exec.Status = execview.StatusPending
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = now
	}
	exec.Normalize(now)

	s.mu.Lock()
	s.current = exec
	s.syncListLocked(exec, true)
	snapshot := exec.Clone()
	watchers := s.watchersLocked()
	s.mu.Unlock()
	notify(watchers, snapshot)

	s.logger.Info("execution started", "execution_id", exec.ID, "workflow_id", workflowID)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		_ = s.RefreshTimeline(context.WithoutCancel(ctx), exec.ID)
	}()
	return snapshot, nil
}

// Stop requests cancellation. On success, if executionID is the current
// execution and it is not already terminal, it is optimistically marked
// cancelled with a pending override until the server confirms.
func (s *Store) Stop(ctx context.Context, executionID string) error {
	if err := s.backend.Stop(ctx, executionID); err != nil {
		return fmt.Errorf("stopping execution %s: %w", executionID, err)
	}
	now := s.now()
	s.mutate(executionID, func(e *execview.Execution) bool {
		if e.IsTerminal() {
			return false
		}
		e.Status = execview.StatusCancelled
		e.Error = CancelledByUser
		e.CompletedAt = &now
		e.PendingOverride = &execview.Override{
			Status: execview.StatusCancelled,
			Reason: CancelledByUser,
			SetAt:  now,
		}
		return true
	})
	s.logger.Info("execution stop requested", "execution_id", executionID)
	return nil
}

// LoadExecutions replaces the execution list. A not-found response means
// there are no executions. On other failures the previous list is kept.
func (s *Store) LoadExecutions(ctx context.Context, workflowID string) error {
	list, err := s.backend.Executions(ctx, workflowID)
	if err != nil {
		if !isNotFound(err) {
			s.logger.Warn("loading executions failed", "workflow_id", workflowID, "error", err)
			return fmt.Errorf("loading executions: %w", err)
		}
		list = nil
	}
	now := s.now()
	executions := make([]*execview.Execution, 0, len(list))
	for _, e := range list {
		if e == nil || e.ID == "" {
			continue
		}
		e.Normalize(now)
		executions = append(executions, e)
	}

	s.mu.Lock()
	s.executions = executions
	if s.current != nil {
		s.syncListLocked(s.current, false)
	}
	s.mu.Unlock()
	return nil
}

// LoadExecution replaces the current execution with a fresh snapshot, then
// attaches its screenshots and refreshes its timeline. Failures after the
// base snapshot is installed are logged and do not fail the load.
func (s *Store) LoadExecution(ctx context.Context, executionID string) error {
	exec, err := s.backend.Execution(ctx, executionID)
	if err != nil {
		s.logger.Warn("loading execution failed", "execution_id", executionID, "error", err)
		return fmt.Errorf("loading execution %s: %w", executionID, err)
	}
	if exec == nil || exec.ID == "" {
		return fmt.Errorf("loading execution %s: %w", executionID, execview.ErrMissingID)
	}
	exec.Normalize(s.now())

	s.mu.Lock()
	s.current = exec
	s.syncListLocked(exec, true)
	snapshot := exec.Clone()
	watchers := s.watchersLocked()
	s.mu.Unlock()
	notify(watchers, snapshot)

	screenshots, err := s.backend.Screenshots(ctx, exec.ID)
	if err != nil {
		s.logger.Warn("loading screenshots failed", "execution_id", exec.ID, "error", err)
	} else if len(screenshots) > 0 {
		s.mutate(exec.ID, func(e *execview.Execution) bool {
			added := false
			for _, shot := range screenshots {
				if e.AddScreenshot(shot) {
					added = true
				}
			}
			return added
		})
	}

	_ = s.RefreshTimeline(ctx, exec.ID)
	return nil
}

// RefreshTimeline fetches the timeline snapshot for executionID and merges
// it into the current execution, provided that is still executionID. A
// result for an execution that is no longer current is discarded.
func (s *Store) RefreshTimeline(ctx context.Context, executionID string) error {
	snap, err := s.backend.Timeline(ctx, executionID)
	if err != nil {
		s.logger.Warn("refreshing timeline failed", "execution_id", executionID, "error", err)
		return fmt.Errorf("refreshing timeline for %s: %w", executionID, err)
	}
	if snap == nil {
		return nil
	}
	now := s.now()
	applied := s.mutate(executionID, func(e *execview.Execution) bool {
		mergeSnapshot(e, snap, now)
		return true
	})
	if !applied {
		s.logger.Debug("discarding timeline for execution no longer current", "execution_id", executionID)
	}
	return nil
}

// mutate applies fn to the current execution if it is executionID. fn
// reports whether it changed anything; watchers are notified if so.
func (s *Store) mutate(executionID string, fn func(e *execview.Execution) bool) bool {
	s.mu.Lock()
	if s.current == nil || s.current.ID != executionID {
		s.mu.Unlock()
		return false
	}
	if !fn(s.current) {
		s.mu.Unlock()
		return false
	}
	s.syncListLocked(s.current, false)
	snapshot := s.current.Clone()
	watchers := s.watchersLocked()
	s.mu.Unlock()
	notify(watchers, snapshot)
	return true
}

// syncListLocked mirrors exec's summary fields into the execution list. An
// execution missing from the list is added at the front only if insert is set.
func (s *Store) syncListLocked(exec *execview.Execution, insert bool) {
	summary := &execview.Execution{
		ID:          exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Progress:    exec.Progress,
		CurrentStep: exec.CurrentStep,
		Error:       exec.Error,
	}
	summary = summary.Clone()
	for i, e := range s.executions {
		if e.ID == exec.ID {
			s.executions[i] = summary
			return
		}
	}
	if insert {
		s.executions = append([]*execview.Execution{summary}, s.executions...)
	}
}

func (s *Store) watchersLocked() []func(*execview.Execution) {
	if len(s.watchers) == 0 {
		return nil
	}
	out := make([]func(*execview.Execution), 0, len(s.watchers))
	for i := 0; i < s.nextWatch; i++ {
		if fn, ok := s.watchers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(watchers []func(*execview.Execution), exec *execview.Execution) {
	for _, fn := range watchers {
		fn(exec.Clone())
	}
}

func isNotFound(err error) bool {
	var apiErr retry.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode() == http.StatusNotFound
}
