// Package agui translates native agent runtime events into AG-UI protocol events.
//
// AG-UI (Agent-User Interface) is an open, lightweight, event-based protocol that
// standardizes how AI agents connect to user-facing applications. This package
// holds the per-run [Translator], predictive-state support and the request
// types a server decodes from AG-UI clients.
//
// # Overview
//
// This package provides:
//   - [Translator]: stateful per-run converter from [native.Event] to AG-UI events
//   - [PredictiveState]: PredictState announcements and the state mirror built
//     from tool arguments
//   - [RunAgentInput]: the AG-UI run request, validated by [RunAgentInput.Prepare]
//   - [SplitTail]: extraction of client-supplied tool results
//
// The package does NOT provide HTTP handlers. See cmd/aguiserver for SSE and
// websocket transports.
//
// # Usage
//
//	tr := agui.NewTranslator(
//	    agui.WithStreamingArgs(true),
//	    agui.WithPredictState(agui.PredictStateMapping{
//	        StateKey: "document", Tool: "write_document", Argument: "document",
//	    }),
//	)
//	for ev := range nativeEvents {
//	    if ev.HasLongRunningCall() {
//	        emit(tr.TranslateLongRunning(ev)...)
//	    }
//	    emit(tr.Translate(ev, threadID, runID)...)
//	}
//	emit(tr.Finalize()...)
//
// # Tool Calls
//
// A single logical tool call may be seen as a streamed preview, as a confirmed
// event, on the long-running path and through the client proxy. The translator
// consults a [dedup.Registry] before every emission so the client sees exactly
// one TOOL_CALL_START/END pair per call. When the confirmed sighting carries a
// different id than the streamed preview, [Translator.StreamingID] maps it back
// to the id the client knows.
//
// # Thread Safety
//
// The Translator is NOT safe for concurrent use. The dedup sets and the
// PredictiveState it is configured with may be shared with components running
// in other goroutines.
package agui
