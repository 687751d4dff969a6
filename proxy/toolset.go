// Package proxy exposes client-owned AG-UI tools to the native runtime.
//
// Each frontend tool becomes a long-running proxy. When the runtime invokes a
// proxy, the toolset announces the call to the client as a
// TOOL_CALL_START/ARGS/END triple and returns without a result. The client
// answers on a later run with a tool message.
//
// The toolset and the translator share two dedup sets. Ids the proxy emits go
// into [Toolset.EmittedIDs], which the translator reads as its client-emitted
// set. Before emitting, the proxy checks the translator's own emitted set so a
// call the translator already announced is not announced again. When both
// see a call at the same time, a shared claim set (see [WithClaims]) decides
// which of them announces it.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/spetersoncode/agbridge/agui"
	"github.com/spetersoncode/agbridge/dedup"
	"github.com/spetersoncode/agbridge/native"
)

// ErrUnknownTool is returned when invoking a tool the toolset does not hold.
var ErrUnknownTool = errors.New("proxy: unknown client tool")

// Toolset holds the client tools available to one run.
// It is safe for concurrent use.
type Toolset struct {
	mu      sync.Mutex
	tools   map[string]agui.Tool
	order   []string
	schemas map[string]*jsonschema.Schema
	queue   []events.Event

	prefix            string
	predict           *agui.PredictiveState
	emitted           *dedup.Set
	translatorEmitted *dedup.Set
	claims            *dedup.Set
	log               *slog.Logger
}

// Option configures a Toolset.
type Option func(*options)

type options struct {
	prefix            string
	filter            func(agui.Tool) bool
	predict           *agui.PredictiveState
	translatorEmitted *dedup.Set
	claims            *dedup.Set
	logger            *slog.Logger
}

// WithPrefix prepends a prefix to every tool name exposed to the runtime.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithFilter keeps only tools the predicate accepts.
func WithFilter(keep func(agui.Tool) bool) Option {
	return func(o *options) { o.filter = keep }
}

// WithNames keeps only the named tools.
func WithNames(names ...string) Option {
	allowed := dedup.NewSet(names...)
	return WithFilter(func(t agui.Tool) bool { return allowed.Has(t.Name) })
}

// WithPredictiveState shares predictive state with the translator.
func WithPredictiveState(p *agui.PredictiveState) Option {
	return func(o *options) { o.predict = p }
}

// WithTranslatorEmitted shares the translator's emitted-id set.
func WithTranslatorEmitted(s *dedup.Set) Option {
	return func(o *options) { o.translatorEmitted = s }
}

// WithClaims shares the claim set with the translator.
func WithClaims(s *dedup.Set) Option {
	return func(o *options) { o.claims = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Toolset from the tools a client sent with its run request.
// A tool whose parameter schema does not compile is kept without validation.
func New(tools []agui.Tool, opts ...Option) *Toolset {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.translatorEmitted == nil {
		o.translatorEmitted = dedup.NewSet()
	}

	ts := &Toolset{
		tools:             make(map[string]agui.Tool),
		schemas:           make(map[string]*jsonschema.Schema),
		prefix:            o.prefix,
		predict:           o.predict,
		emitted:           dedup.NewSet(),
		translatorEmitted: o.translatorEmitted,
		claims:            o.claims,
		log:               o.logger,
	}
	for _, t := range tools {
		if t.Name == "" || (o.filter != nil && !o.filter(t)) {
			continue
		}
		name := o.prefix + t.Name
		if _, dup := ts.tools[name]; dup {
			continue
		}
		ts.tools[name] = t
		ts.order = append(ts.order, name)

		schema, err := compileSchema(name, t.Parameters)
		if err != nil {
			ts.log.Warn("client tool schema did not compile", "tool", t.Name, "error", err)
			continue
		}
		if schema != nil {
			ts.schemas[name] = schema
		}
	}
	return ts
}

// Names returns the tool names exposed to the runtime.
func (t *Toolset) Names() []string {
	return append([]string(nil), t.order...)
}

// Has reports whether name is one of the exposed tool names.
func (t *Toolset) Has(name string) bool {
	_, ok := t.tools[name]
	return ok
}

// Len returns the number of tools.
func (t *Toolset) Len() int {
	return len(t.order)
}

// Declarations returns the tools as the runtime should declare them, with
// prefixed names.
func (t *Toolset) Declarations() []agui.Tool {
	out := make([]agui.Tool, 0, len(t.order))
	for _, name := range t.order {
		tool := t.tools[name]
		tool.Name = name
		out = append(out, tool)
	}
	return out
}

// EmittedIDs returns the set of ids this toolset announced.
func (t *Toolset) EmittedIDs() *dedup.Set {
	return t.emitted
}

// Invoke announces a client tool call. The call stays pending until the
// client supplies its result, so no response is returned.
func (t *Toolset) Invoke(ctx context.Context, call native.FunctionCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tool, ok := t.tools[call.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	id := call.ID
	if id == "" {
		id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	log := t.log.With("tool", tool.Name, "tool_call_id", id)

	if t.translatorEmitted.Has(id) || !t.claims.Claim(id) {
		log.Debug("client tool call already emitted by translator")
		t.emitted.Add(id)
		return nil
	}

	args, err := call.Arguments()
	if err != nil {
		log.Warn("client tool arguments did not decode", "error", err)
	}
	if schema := t.schemas[call.Name]; schema != nil && args != nil {
		if err := schema.Validate(toAny(args)); err != nil {
			log.Warn("client tool arguments do not match schema", "error", err)
		}
	}

	var out []events.Event
	if ann := t.predict.Announce(tool.Name); ann != nil {
		out = append(out, ann)
	}
	out = append(out,
		events.NewToolCallStartEvent(id, tool.Name),
		events.NewToolCallArgsEvent(id, call.ArgumentsJSON()),
		events.NewToolCallEndEvent(id),
	)
	t.predict.Accumulate(tool.Name, args)

	t.mu.Lock()
	t.queue = append(t.queue, out...)
	t.mu.Unlock()
	t.emitted.Add(id)

	log.Debug("announced client tool call")
	return nil
}

// Drain returns and clears the events queued by Invoke.
func (t *Toolset) Drain() []events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.queue
	t.queue = nil
	return out
}

func compileSchema(name string, params json.RawMessage) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// toAny round-trips args through JSON so numbers and nested values have the
// shapes the validator expects.
func toAny(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}
