package event

import (
	"fmt"
	"time"

	"github.com/deepnoodle-ai/execview/log"
)

// Options configures a Normalizer.
type Options struct {
	Logger log.Logger
	Now    func() time.Time
}

// Normalizer converts raw push-channel payloads into canonical events.
// It never fails: payloads that cannot be interpreted are logged and
// dropped.
type Normalizer struct {
	logger log.Logger
	now    func() time.Time
}

// NewNormalizer returns a Normalizer.
func NewNormalizer(opts Options) *Normalizer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Normalizer{logger: log.OrNull(opts.Logger), now: now}
}

// Normalize interprets payload for the execution identified by target. It
// returns false if the payload is malformed, unrecognized, or addressed to a
// different execution. Events that do not name an execution are attributed
// to target.
func (n *Normalizer) Normalize(target string, payload []byte) (ev Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("recovered while normalizing payload", "panic", fmt.Sprint(r))
			ev, ok = nil, false
		}
	}()

	env, err := Decode(payload)
	if err != nil {
		n.logger.Warn("dropping push-channel payload", "error", err, "bytes", len(payload))
		return nil, false
	}
	executionID := env.ExecutionID()
	if executionID == "" {
		executionID = target
	}
	if target != "" && executionID != target {
		n.logger.Debug("ignoring event for another execution",
			"execution_id", executionID, "target", target)
		return nil, false
	}
	m := &mapping{executionID: executionID, now: n.now()}
	ev, err = env.toEvent(m)
	if err != nil {
		n.logger.Warn("dropping push-channel event", "error", err, "execution_id", executionID)
		return nil, false
	}
	return ev, true
}
