// Package runner drives a native agent runtime for AG-UI runs.
//
// A [Runner] takes one RunAgentInput, ensures the thread's session, writes
// any client tool results to the session log, starts the runtime and turns
// its native events into AG-UI events through a per-run [agui.Translator].
// Client tools reach the runtime as a [proxy.Toolset].
//
// Whether the stored resumption token is passed to the runtime depends on the
// agent [Topology], resolved once when the Runner is created:
//
//	r := runner.New(rt, mgr, runner.WithTopology(runner.Topology{
//	    Kind:      runner.KindSequential,
//	    Resumable: true,
//	}))
//	for ev := range r.Run(ctx, input) {
//	    // write ev to the client
//	}
//
// Runs are traced and counted through the global OpenTelemetry providers.
package runner
