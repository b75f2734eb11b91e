package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/heartbeat"
	"github.com/deepnoodle-ai/execview/pushchannel"
	"github.com/deepnoodle-ai/execview/viewer"
	"github.com/gobwas/glob"
)

// progressPrinter turns successive copies of an execution into a stream of
// printed changes: new log lines, step transitions, status and heartbeat
// state changes.
type progressPrinter struct {
	out    io.Writer
	filter glob.Glob

	mu        sync.Mutex
	seenLogs  map[string]bool
	frames    map[int]string
	status    execview.Status
	progress  int
	liveness  heartbeat.State
	done      chan struct{}
	closeOnce sync.Once
}

// compileStepFilter compiles a step-name glob. An empty pattern matches
// everything and yields nil.
func compileStepFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid step pattern %q: %w", pattern, err)
	}
	return g, nil
}

func newProgressPrinter(w io.Writer, filter glob.Glob) *progressPrinter {
	return &progressPrinter{
		out:      w,
		filter:   filter,
		seenLogs: map[string]bool{},
		frames:   map[int]string{},
		progress: -1,
		done:     make(chan struct{}),
	}
}

func (p *progressPrinter) matches(step string) bool {
	return p.filter == nil || p.filter.Match(step)
}

func (p *progressPrinter) onChange(exec *execview.Execution) {
	if exec == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if exec.Status != p.status {
		p.status = exec.Status
		line := fmt.Sprintf("%s %s", boldStyle.Sprint(exec.ID), formatStatus(string(exec.Status)))
		if exec.Error != "" {
			line += " " + errorStyle.Sprint(exec.Error)
		}
		fmt.Fprintln(p.out, line)
	}
	if exec.Progress != p.progress && !exec.IsTerminal() {
		p.progress = exec.Progress
		if exec.CurrentStep != "" {
			fmt.Fprintf(p.out, "%s %d%% %s\n", mutedStyle.Sprint("progress"), exec.Progress, exec.CurrentStep)
		} else {
			fmt.Fprintf(p.out, "%s %d%%\n", mutedStyle.Sprint("progress"), exec.Progress)
		}
	}
	for _, entry := range exec.Logs {
		if p.seenLogs[entry.ID] {
			continue
		}
		p.seenLogs[entry.ID] = true
		if p.matches(entry.StepName) {
			fmt.Fprintln(p.out, formatLog(entry))
		}
	}
	for _, f := range exec.Timeline {
		if p.frames[f.StepIndex] == f.Status {
			continue
		}
		p.frames[f.StepIndex] = f.Status
		if p.matches(f.NodeID) || p.matches(f.StepType) {
			fmt.Fprintf(p.out, "step %d %s %s %s\n", f.StepIndex, orDash(f.StepType), formatStatus(f.Status), frameDetail(f))
		}
	}
	if exec.IsTerminal() {
		p.closeOnce.Do(func() { close(p.done) })
	}
}

func (p *progressPrinter) onHeartbeat(r heartbeat.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.State == p.liveness || r.Final {
		return
	}
	p.liveness = r.State
	fmt.Fprintln(p.out, formatHeartbeat(r))
}

// Done is closed once the execution is terminal.
func (p *progressPrinter) Done() <-chan struct{} {
	return p.done
}

// watch opens a viewer, calls open to select the execution and prints
// changes until the execution is terminal or the process is interrupted.
func watch(rt *runtime, filter glob.Glob, open func(ctx context.Context, v *viewer.Viewer) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := newProgressPrinter(out, filter)
	opts := viewer.Options{
		Backend:           rt.client,
		Logger:            rt.logger,
		HeartbeatInterval: rt.config.Viewer.HeartbeatInterval.Std(),
		OnChange:          printer.onChange,
		OnHeartbeat:       printer.onHeartbeat,
	}
	if !rt.config.Viewer.DisablePolling {
		opts.PollInterval = rt.config.Viewer.PollInterval.Std()
	}

	// The connection outlives the viewer so Close can still unsubscribe.
	conn, err := pushchannel.Dial(ctx, rt.config.PushChannelURL(), pushchannel.Options{Logger: rt.logger})
	if err != nil {
		rt.logger.Warn("push channel unavailable, falling back to polling", "error", err)
	} else {
		defer conn.Close()
		opts.Channel = conn
	}
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	v := viewer.New(opts)
	defer func() {
		if err := v.Close(context.Background()); err != nil {
			rt.logger.Warn("closing viewer", "error", err)
		}
	}()
	if conn != nil {
		go func() {
			if err := conn.Run(runCtx, func(payload []byte) { v.HandleMessage(payload) }); err != nil && runCtx.Err() == nil {
				rt.logger.Warn("push channel closed", "error", err)
			}
		}()
	}

	if err := open(ctx, v); err != nil {
		return err
	}
	select {
	case <-printer.Done():
		if r, ok := v.Heartbeat(); ok {
			rt.logger.Debug("final liveness", "state", r.State, "age", r.Age)
		}
		return nil
	case <-ctx.Done():
		fmt.Fprintln(out, mutedStyle.Sprint("stopped watching"))
		return nil
	}
}
