package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spetersoncode/agbridge"
	"github.com/spetersoncode/agbridge/agui"
	"github.com/spetersoncode/agbridge/dedup"
	"github.com/spetersoncode/agbridge/native"
	"github.com/spetersoncode/agbridge/proxy"
	"github.com/spetersoncode/agbridge/session"
	"github.com/spetersoncode/agbridge/store"
)

// Defaults for a Runner.
const (
	DefaultUserID     = "anonymous"
	DefaultBufferSize = 100
)

// Runner drives one native runtime on behalf of AG-UI clients.
// It is safe for concurrent use; each call to Run owns its own translator
// and proxy toolset.
type Runner struct {
	rt         Runtime
	mgr        *session.Manager
	cfg        config
	needsToken bool
	log        *slog.Logger
	tracer     trace.Tracer
	metrics    *instruments
}

// Option configures a Runner.
type Option func(*config)

type config struct {
	topology      Topology
	streamingArgs bool
	mappings      []agui.PredictStateMapping
	toolPrefix    string
	toolFilter    func(agui.Tool) bool
	logger        *slog.Logger
	userID        string
	timeout       time.Duration
	bufferSize    int
}

// WithTopology describes the root agent. It decides whether resumption
// tokens are passed to the runtime.
func WithTopology(t Topology) Option {
	return func(c *config) { c.topology = t }
}

// WithStreamingArgs streams tool-call arguments as the runtime produces them.
func WithStreamingArgs(on bool) Option {
	return func(c *config) { c.streamingArgs = on }
}

// WithPredictState configures predictive-state mappings.
func WithPredictState(mappings ...agui.PredictStateMapping) Option {
	return func(c *config) { c.mappings = append(c.mappings, mappings...) }
}

// WithClientToolPrefix prefixes client tool names exposed to the runtime.
func WithClientToolPrefix(prefix string) Option {
	return func(c *config) { c.toolPrefix = prefix }
}

// WithClientToolFilter keeps only client tools the predicate accepts.
func WithClientToolFilter(keep func(agui.Tool) bool) Option {
	return func(c *config) { c.toolFilter = keep }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithUserID sets the user sessions are scoped to.
func WithUserID(id string) Option {
	return func(c *config) { c.userID = id }
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithBufferSize sets the capacity of the event channel returned by Run.
func WithBufferSize(n int) Option {
	return func(c *config) { c.bufferSize = n }
}

// New creates a Runner.
func New(rt Runtime, mgr *session.Manager, opts ...Option) *Runner {
	cfg := config{userID: DefaultUserID, bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = DefaultBufferSize
	}
	return &Runner{
		rt:         rt,
		mgr:        mgr,
		cfg:        cfg,
		needsToken: cfg.topology.NeedsInvocationID(),
		log:        cfg.logger,
		tracer:     otel.Tracer(instrumentationName),
		metrics:    newInstruments(),
	}
}

// Capabilities describes how a Runner drives its runtime.
type Capabilities struct {
	Topology          Topology                   `json:"-"`
	Kind              string                     `json:"kind"`
	Resumable         bool                       `json:"resumable"`
	NeedsInvocationID bool                       `json:"needsInvocationId"`
	StreamingArgs     bool                       `json:"streamingArgs"`
	PredictState      []agui.PredictStateMapping `json:"predictState,omitempty"`
}

// Capabilities returns the runner's resolved configuration.
func (r *Runner) Capabilities() Capabilities {
	return Capabilities{
		Topology:          r.cfg.topology,
		Kind:              r.cfg.topology.Kind.String(),
		Resumable:         r.cfg.topology.Resumable,
		NeedsInvocationID: r.needsToken,
		StreamingArgs:     r.cfg.streamingArgs,
		PredictState:      r.cfg.mappings,
	}
}

// Run executes one AG-UI run and returns its protocol events.
//
// The channel is closed when the run ends. The run ends with RUN_FINISHED,
// or RUN_ERROR carrying a code. Sends block, so the caller must drain the
// channel or cancel ctx.
func (r *Runner) Run(ctx context.Context, input *agui.RunAgentInput) <-chan events.Event {
	ch := make(chan events.Event, r.cfg.bufferSize)
	go r.run(ctx, input, ch)
	return ch
}

func (r *Runner) run(ctx context.Context, input *agui.RunAgentInput, ch chan<- events.Event) {
	defer close(ch)

	if r.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.timeout)
		defer cancel()
	}
	em := &emitter{ctx: ctx, ch: ch}
	start := time.Now()

	p, err := input.Prepare()
	if err != nil {
		err = agbridge.NewUserInputError("invalid run input", err)
		r.log.Warn("rejected run input", "thread_id", input.ThreadID, "error", err)
		em.final(runError(err, input.RunID))
		r.metrics.finished(ctx, start, agbridge.CodeOf(err))
		return
	}

	log := r.log.With("thread_id", p.ThreadID, "run_id", p.RunID)
	ctx, span := r.tracer.Start(ctx, "agbridge.run", trace.WithAttributes(
		attribute.String("agui.thread_id", p.ThreadID),
		attribute.String("agui.run_id", p.RunID),
		attribute.String("agbridge.topology", r.cfg.topology.Kind.String()),
		attribute.Bool("agbridge.resumable", r.cfg.topology.Resumable),
	))
	defer span.End()
	em.ctx = ctx
	r.metrics.runs.Add(ctx, 1)

	if err := em.send(events.NewRunStartedEvent(p.ThreadID, p.RunID)); err != nil {
		return
	}

	if err := r.execute(ctx, p, em, log); err != nil {
		code := agbridge.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		if code == agbridge.CodeCancelled {
			log.Info("run cancelled", "error", err)
		} else {
			log.Error("run failed", "code", code, "error", err)
		}
		em.final(runError(err, p.RunID))
		r.metrics.finished(ctx, start, code)
		return
	}

	em.final(events.NewRunFinishedEvent(p.ThreadID, p.RunID))
	r.metrics.finished(ctx, start, "")
	log.Debug("run finished", "duration", time.Since(start))
}

// execute runs the native runtime between RUN_STARTED and the final event.
func (r *Runner) execute(ctx context.Context, p *agui.PreparedInput, em *emitter, log *slog.Logger) error {
	sess, err := r.mgr.Ensure(ctx, r.cfg.userID, p.ThreadID, p.State)
	if err != nil {
		return err
	}
	exec := r.mgr.Begin(sess, r.cfg.topology.Resumable)

	if err := r.persistResults(ctx, sess.ID, p.ToolResults, log); err != nil {
		return err
	}
	if err := exec.Resolve(ctx, p.ToolResultIDs()...); err != nil {
		return err
	}

	// The translator and the proxy each read the other's emitted set.
	predict := agui.NewPredictiveState(r.cfg.mappings)
	translatorEmitted := dedup.NewSet()
	claims := dedup.NewSet()
	tools := proxy.New(p.Tools,
		proxy.WithPrefix(r.cfg.toolPrefix),
		proxy.WithFilter(r.cfg.toolFilter),
		proxy.WithPredictiveState(predict),
		proxy.WithTranslatorEmitted(translatorEmitted),
		proxy.WithClaims(claims),
		proxy.WithLogger(log),
	)
	tr := agui.NewTranslator(
		agui.WithStreamingArgs(r.cfg.streamingArgs),
		agui.WithResumable(r.cfg.topology.Resumable),
		agui.WithPredictiveState(predict),
		agui.WithEmittedSet(translatorEmitted),
		agui.WithClaims(claims),
		agui.WithClientEmitted(tools.EmittedIDs()),
		agui.WithClientToolNames(tools.Names()...),
		agui.WithLogger(log),
	)

	req := RunRequest{
		AppName:     r.mgr.AppName(),
		UserID:      r.cfg.userID,
		SessionID:   sess.ID,
		RunID:       p.RunID,
		NewMessage:  p.NewMessage(),
		ClientTools: tools,
	}
	if r.needsToken {
		req.InvocationID = exec.ResumptionToken()
	}
	if req.InvocationID != "" {
		log.Debug("resuming invocation", "invocation_id", req.InvocationID)
	}

	streamErr := r.consume(ctx, req, p, tr, tools, exec, em, log)

	// Run end is a write boundary even when the stream failed, so calls
	// already surfaced to the client stay pending.
	exec.AwaitResult(tools.EmittedIDs().Values()...)
	exec.AwaitResult(tr.ConfirmIDs()...)
	if err := exec.Commit(context.WithoutCancel(ctx)); err != nil {
		if streamErr != nil {
			log.Error("failed to commit run state", "error", err)
			return streamErr
		}
		return err
	}
	if streamErr != nil {
		return streamErr
	}

	state, err := r.mgr.State(ctx, r.cfg.userID, p.ThreadID)
	if err != nil {
		return agbridge.NewPermanentError("runner: read final state", agbridge.CodeSession, err)
	}
	if merged := agui.MergeState(state, tr.PredictedState()); len(merged) > 0 {
		return em.send(events.NewStateSnapshotEvent(merged))
	}
	return nil
}

// consume reads the native stream until it ends and forwards translated
// events. A non-resumable run that surfaced a long-running call stops at the
// first durable event after it; stopping on a partial event would lose the
// turn the runtime persists when it reaches that event.
func (r *Runner) consume(ctx context.Context, req RunRequest, p *agui.PreparedInput, tr *agui.Translator,
	tools *proxy.Toolset, exec *session.Execution, em *emitter, log *slog.Logger) error {
	stream, err := r.rt.Run(ctx, req)
	if err != nil {
		return agentError(err)
	}
	defer stream.Close()

	sawLongRunning := false
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return agentError(err)
		}
		if err := em.send(tools.Drain()...); err != nil {
			return err
		}
		if ev == nil {
			continue
		}

		if ev.HasLongRunningCall() {
			ids := callIDs(ev.LongRunningCalls())
			exec.ObserveInvocation(ev.InvocationID)
			exec.AwaitResult(ids...)
			if !sawLongRunning {
				log.Debug("long-running tool call surfaced", "tool_call_ids", ids, "partial", ev.IsPartial())
			}
			sawLongRunning = true
			r.metrics.longRunning.Add(ctx, int64(len(ids)))
			if err := em.send(tr.TranslateLongRunning(ev)...); err != nil {
				return err
			}
		}
		if err := em.send(tr.Translate(ev, p.ThreadID, p.RunID)...); err != nil {
			return err
		}
		exec.Satisfied(responseIDs(ev.Responses())...)

		if sawLongRunning && !r.cfg.topology.Resumable && !ev.IsPartial() {
			log.Debug("stopping after durable event", "event_id", ev.ID)
			break
		}
	}

	if err := em.send(tools.Drain()...); err != nil {
		return err
	}
	return em.send(tr.Finalize()...)
}

// persistResults writes client tool results to the session log. Results
// already in the log are skipped, so each function response is stored once.
// The runtime reads them from the log; they are never passed as the new
// message.
func (r *Runner) persistResults(ctx context.Context, sessionID string, results []agui.ToolResult, log *slog.Logger) error {
	if len(results) == 0 {
		return nil
	}
	recs, err := r.mgr.Store().Events(ctx, sessionID)
	if err != nil {
		return agbridge.NewPermanentError("runner: read session events", agbridge.CodeSession, err)
	}
	seen := dedup.NewSet()
	for _, rec := range recs {
		seen.Add(responseIDs(native.ContentResponses(rec.Content))...)
	}

	var fresh []native.FunctionResponse
	for _, res := range results {
		if seen.Has(res.ToolCallID) {
			log.Debug("tool result already persisted", "tool_call_id", res.ToolCallID)
			continue
		}
		seen.Add(res.ToolCallID)
		fresh = append(fresh, res.FunctionResponse())
	}
	if len(fresh) == 0 {
		return nil
	}

	err = r.mgr.Append(ctx, sessionID, store.Record{
		ID:        uuid.NewString(),
		Author:    "user",
		Content:   native.ResponsesContent(fresh),
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	r.metrics.persisted.Add(ctx, int64(len(fresh)))
	log.Debug("persisted tool results", "count", len(fresh))
	return nil
}

type emitter struct {
	ctx context.Context
	ch  chan<- events.Event
}

func (e *emitter) send(evs ...events.Event) error {
	for _, ev := range evs {
		select {
		case e.ch <- ev:
		case <-e.ctx.Done():
			return e.ctx.Err()
		}
	}
	return nil
}

// final sends the last event of a run. It is dropped if the consumer has
// gone away.
func (e *emitter) final(ev events.Event) {
	if e.ctx.Err() == nil {
		_ = e.send(ev)
		return
	}
	select {
	case e.ch <- ev:
	default:
	}
}

func runError(err error, runID string) events.Event {
	code := agbridge.CodeOf(err)
	if runID == "" {
		return events.NewRunErrorEvent(err.Error(), events.WithErrorCode(code))
	}
	return events.NewRunErrorEvent(err.Error(), events.WithErrorCode(code), events.WithRunID(runID))
}

func agentError(err error) error {
	var ce agbridge.CategorizedError
	if errors.As(err, &ce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return agbridge.NewPermanentError("runner: runtime", agbridge.CodeAgent, err)
}

func callIDs(calls []native.FunctionCall) []string {
	ids := make([]string, 0, len(calls))
	for _, c := range calls {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func responseIDs(responses []native.FunctionResponse) []string {
	ids := make([]string, 0, len(responses))
	for _, r := range responses {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
