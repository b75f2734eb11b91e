// Package execview tracks the lifecycle of a remotely executed workflow run
// and keeps a consistent view of its progress, step timeline, logs and
// artifacts.
//
// The root package holds the data model shared by the rest of the module:
//
//   - [Execution] is the observed run and the only entity the store mutates.
//   - [LogEntry] lines are deduplicated by ID with [MergeLogs].
//   - [TimelineFrame] records one step; frames are keyed by step index
//     ([UpsertFrame]).
//   - [Heartbeat] is the latest liveness signal of a running execution.
//
// The reconciliation core lives in subpackages: [github.com/deepnoodle-ai/execview/event]
// normalizes push-channel payloads, [github.com/deepnoodle-ai/execview/timeline]
// maps timeline snapshots, [github.com/deepnoodle-ai/execview/heartbeat]
// derives liveness, [github.com/deepnoodle-ai/execview/subscription] decides
// when to listen and [github.com/deepnoodle-ai/execview/store] owns the
// current execution. [github.com/deepnoodle-ai/execview/viewer] wires them
// together for one viewing scope.
package execview
