// Package session tracks execution and resumption state per AG-UI thread.
//
// Each thread maps to one durable [store.Session]. Its state carries the ids
// of tool calls surfaced to the client that still await a result, and the
// runtime's resumption token for an invocation paused on such a call.
//
// A run moves the thread through Idle → AwaitingToolResult → Idle:
//
//	sess, err := mgr.Ensure(ctx, userID, threadID, clientState)
//	exec := mgr.Begin(sess, resumable)
//	err = exec.Resolve(ctx, answeredIDs...)  // run start
//	token := exec.ResumptionToken()         // pass to the runtime if the topology needs it
//	for ev := range stream {
//	    exec.ObserveInvocation(ev.InvocationID)
//	    exec.AwaitResult(longRunningIDs...)
//	}
//	err = exec.Commit(ctx)                    // run end
//
// Writes happen only at those boundaries, never per event.
//
// The [Manager] also deletes idle sessions. A session with pending tool calls
// is never deleted.
package session
