// Package agbridge connects an agent running on an ADK-style native runtime to
// AG-UI front ends.
//
// The native runtime emits its own event stream: partial previews, confirmed
// events, function calls, function responses and long-running tool ids. AG-UI
// clients expect RUN_*, TEXT_MESSAGE_*, TOOL_CALL_*, CUSTOM and STATE_* events,
// with every tool call surfaced exactly once, and the ability to pause a run
// for a human-supplied tool result and resume it later.
//
// # Packages
//
//   - [github.com/spetersoncode/agbridge/argstream]: rebuilds streamed tool-call
//     arguments into concatenable JSON deltas
//   - [github.com/spetersoncode/agbridge/dedup]: shared id sets and the
//     suppression registry consulted before every tool-call emission
//   - [github.com/spetersoncode/agbridge/native]: the native event model
//   - [github.com/spetersoncode/agbridge/agui]: the per-run event translator,
//     predictive state and AG-UI request parsing
//   - [github.com/spetersoncode/agbridge/proxy]: client-owned tools exposed to
//     the runtime as long-running proxies
//   - [github.com/spetersoncode/agbridge/store]: session persistence
//   - [github.com/spetersoncode/agbridge/session]: pending tool calls and
//     resumption tokens per thread
//   - [github.com/spetersoncode/agbridge/runner]: drives one run end to end
//
// This package holds the categorized [Error] type shared by all of them.
// [CodeOf] maps any error to the code reported in RUN_ERROR events.
package agbridge
