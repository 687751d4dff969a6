package agui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/agbridge/argstream"
	"github.com/spetersoncode/agbridge/dedup"
	"github.com/spetersoncode/agbridge/native"
)

// Translator converts native runtime events into AG-UI events for one run.
//
// Create a Translator per run with NewTranslator, or call Reset between runs.
// The Translator is not safe for concurrent use; only the dedup sets and the
// PredictiveState it was given may be shared with other goroutines.
type Translator struct {
	cfg      translatorConfig
	registry *dedup.Registry
	predict  *PredictiveState
	log      *slog.Logger

	runID string
	seq   int

	// open text message
	messageID     string
	messageAuthor string

	// active argument stream
	streamID   string
	streamName string
	args       *argstream.Builder

	// streamed calls awaiting their confirmed sighting, by tool name
	completed map[string][]string

	confirmedToStreaming map[string]string
	longRunning          []string
	deferredEnds         map[string]bool

	// tool names of announced calls, and the confirm calls made for them
	callNames  map[string]string
	confirmed  map[string]bool
	confirmIDs []string
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*translatorConfig)

type translatorConfig struct {
	streamingArgs bool
	resumable     bool
	mappings      []PredictStateMapping
	predict       *PredictiveState
	clientEmitted *dedup.Set
	emitted       *dedup.Set
	clientNames   *dedup.Set
	claims        *dedup.Set
	logger        *slog.Logger
}

// WithStreamingArgs enables incremental argument streaming.
// When disabled, partial function calls are dropped and only confirmed
// calls are emitted.
func WithStreamingArgs(on bool) TranslatorOption {
	return func(c *translatorConfig) { c.streamingArgs = on }
}

// WithResumable turns on name-based suppression of client tools.
func WithResumable(on bool) TranslatorOption {
	return func(c *translatorConfig) { c.resumable = on }
}

// WithPredictState configures predictive-state mappings.
func WithPredictState(mappings ...PredictStateMapping) TranslatorOption {
	return func(c *translatorConfig) { c.mappings = append(c.mappings, mappings...) }
}

// WithPredictiveState shares predictive state with another component,
// typically the client proxy toolset. It takes precedence over WithPredictState.
func WithPredictiveState(p *PredictiveState) TranslatorOption {
	return func(c *translatorConfig) { c.predict = p }
}

// WithClientEmitted shares the set the client proxy records emitted ids in.
func WithClientEmitted(s *dedup.Set) TranslatorOption {
	return func(c *translatorConfig) { c.clientEmitted = s }
}

// WithEmittedSet supplies the set this translator records its emissions in,
// so the client proxy can see them.
func WithEmittedSet(s *dedup.Set) TranslatorOption {
	return func(c *translatorConfig) { c.emitted = s }
}

// WithClaims shares the claim set with the client proxy, so a call the
// runtime hands to both is announced by exactly one of them.
func WithClaims(s *dedup.Set) TranslatorOption {
	return func(c *translatorConfig) { c.claims = s }
}

// WithClientToolNames sets the names of tools that are always client-resolved.
func WithClientToolNames(names ...string) TranslatorOption {
	return func(c *translatorConfig) {
		if c.clientNames == nil {
			c.clientNames = dedup.NewSet()
		}
		c.clientNames.Add(names...)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) TranslatorOption {
	return func(c *translatorConfig) { c.logger = l }
}

// NewTranslator creates a Translator.
func NewTranslator(opts ...TranslatorOption) *Translator {
	var cfg translatorConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	predict := cfg.predict
	if predict == nil {
		predict = NewPredictiveState(cfg.mappings)
	}
	t := &Translator{
		cfg: cfg,
		registry: dedup.NewRegistry(
			dedup.WithEmitted(cfg.emitted),
			dedup.WithExternal(cfg.clientEmitted),
			dedup.WithClientToolNames(cfg.clientNames),
			dedup.WithClaims(cfg.claims),
			dedup.WithResumable(cfg.resumable),
		),
		predict: predict,
		log:     cfg.logger,
		args:    argstream.New(),
	}
	t.resetState()
	return t
}

// Translate converts one native event into zero or more AG-UI events.
// Calls listed as long-running are left to TranslateLongRunning.
func (t *Translator) Translate(ev *native.Event, threadID, runID string) []events.Event {
	if ev == nil {
		return nil
	}
	if runID != "" {
		t.runID = runID
	}

	out := t.translateText(ev)
	for _, fc := range ev.Calls() {
		if ev.IsLongRunning(fc.ID) || slices.Contains(t.longRunning, fc.ID) {
			continue
		}
		out = append(out, t.translateCall(ev, fc)...)
	}
	for _, fr := range ev.Responses() {
		out = append(out, t.translateResponse(ev, fr)...)
	}
	if delta := stateDelta(ev.StateDelta); delta != nil {
		out = append(out, delta)
	}
	if ev.TurnComplete {
		out = append(out, t.closeText()...)
	}
	return out
}

// TranslateLongRunning emits a complete START/ARGS/END triple for every call
// on the event whose id is listed as long-running, subject to suppression.
// Every long-running id is remembered so later sightings of the same call
// through Translate are skipped.
func (t *Translator) TranslateLongRunning(ev *native.Event) []events.Event {
	var out []events.Event
	for _, fc := range ev.LongRunningCalls() {
		if !slices.Contains(t.longRunning, fc.ID) {
			t.longRunning = append(t.longRunning, fc.ID)
		}
		if reason := t.registry.Check(fc.ID, fc.Name); reason != dedup.Allowed {
			t.log.Debug("suppressed long-running tool call",
				"tool_call_id", fc.ID, "tool", fc.Name, "reason", reason.String())
			continue
		}
		if !t.claim(fc) {
			continue
		}
		out = append(out, t.emitComplete(fc)...)
	}
	return out
}

// Finalize closes whatever the run left open: the text message, an
// unterminated argument stream and withheld TOOL_CALL_END events.
func (t *Translator) Finalize() []events.Event {
	out := t.closeText()
	if t.streamID != "" {
		t.log.Debug("closing unterminated argument stream", "tool_call_id", t.streamID)
		out = append(out, t.closeStream()...)
	}
	ids := slices.Sorted(maps.Keys(t.deferredEnds))
	for _, id := range ids {
		out = append(out, events.NewToolCallEndEvent(id))
		delete(t.deferredEnds, id)
	}
	return out
}

// Reset returns the translator to its freshly constructed state.
// Shared sets are cleared in place so the proxy keeps seeing the same set.
func (t *Translator) Reset() {
	t.registry.Reset()
	t.predict.Reset()
	t.resetState()
}

func (t *Translator) resetState() {
	t.runID = ""
	t.seq = 0
	t.messageID = ""
	t.messageAuthor = ""
	t.streamID = ""
	t.streamName = ""
	t.args.Reset()
	t.completed = make(map[string][]string)
	t.confirmedToStreaming = make(map[string]string)
	t.longRunning = nil
	t.deferredEnds = make(map[string]bool)
	t.callNames = make(map[string]string)
	t.confirmed = make(map[string]bool)
	t.confirmIDs = nil
}

// StreamingID maps a confirmed call id to the id its streamed preview was
// announced under. Unknown ids are returned unchanged.
func (t *Translator) StreamingID(confirmedID string) string {
	if sid, ok := t.confirmedToStreaming[confirmedID]; ok {
		return sid
	}
	return confirmedID
}

// ConfirmedToStreaming returns a copy of the confirmed → streamed id table.
func (t *Translator) ConfirmedToStreaming() map[string]string {
	return maps.Clone(t.confirmedToStreaming)
}

// EmittedIDs returns the set of tool-call ids this translator announced.
func (t *Translator) EmittedIDs() *dedup.Set {
	return t.registry.Emitted()
}

// Registry exposes the suppression registry.
func (t *Translator) Registry() *dedup.Registry {
	return t.registry
}

// LongRunningIDs returns every long-running id seen this run.
func (t *Translator) LongRunningIDs() []string {
	return slices.Clone(t.longRunning)
}

// ConfirmIDs returns the ids of confirm tool calls emitted this run. The
// client answers them like any other client tool call.
func (t *Translator) ConfirmIDs() []string {
	return slices.Clone(t.confirmIDs)
}

// PredictiveState returns the predictive state used by this translator.
func (t *Translator) PredictiveState() *PredictiveState {
	return t.predict
}

// PredictedState returns a copy of the predictive-state mirror.
func (t *Translator) PredictedState() map[string]any {
	return t.predict.Snapshot()
}

// Streaming reports whether an argument stream is open.
func (t *Translator) Streaming() bool {
	return t.streamID != ""
}

func (t *Translator) translateCall(ev *native.Event, fc native.FunctionCall) []events.Event {
	partial := ev.IsPartial()

	if t.cfg.streamingArgs {
		// continuation and end chunks carry no name; they belong to the open stream
		if partial && t.streamID != "" && (fc.Name == "" || fc.ID == t.streamID) {
			return t.continueStream(fc)
		}
		if !partial {
			var out []events.Event
			if t.streamID != "" && fc.Name == t.streamName {
				// confirmed sighting arrived before the end marker
				out = t.closeStream()
			}
			if sid, ok := t.matchStreamed(fc); ok {
				t.confirmedToStreaming[fc.ID] = sid
				t.registry.MarkEmitted(fc.ID)
				t.log.Debug("suppressed confirmed call already streamed",
					"tool_call_id", fc.ID, "streaming_id", sid, "tool", fc.Name)
				return out
			}
		}
	}

	if reason := t.registry.Check(fc.ID, fc.Name); reason != dedup.Allowed {
		t.log.Debug("suppressed tool call",
			"tool_call_id", fc.ID, "tool", fc.Name, "reason", reason.String())
		return nil
	}
	if !partial {
		if !t.claim(fc) {
			return nil
		}
		return t.emitComplete(fc)
	}
	if !t.cfg.streamingArgs {
		return nil
	}
	if fc.Name != "" && fc.Continues() && t.streamID == "" {
		if !t.claim(fc) {
			return nil
		}
		return t.openStream(fc)
	}
	t.log.Debug("dropped stray argument fragment", "tool_call_id", fc.ID, "tool", fc.Name)
	return nil
}

func (t *Translator) claim(fc native.FunctionCall) bool {
	if t.registry.Claim(fc.ID) {
		return true
	}
	t.log.Debug("suppressed tool call",
		"tool_call_id", fc.ID, "tool", fc.Name, "reason", dedup.ClaimedElsewhere.String())
	return false
}

// matchStreamed pairs a confirmed call with a call already delivered through
// the streaming path: by a recorded remap, by identical id, or by the oldest
// completed stream of the same tool name.
func (t *Translator) matchStreamed(fc native.FunctionCall) (string, bool) {
	if sid, ok := t.confirmedToStreaming[fc.ID]; ok {
		return sid, true
	}
	pending := t.completed[fc.Name]
	if len(pending) == 0 {
		return "", false
	}
	i := slices.Index(pending, fc.ID)
	if i < 0 {
		i = 0
	}
	sid := pending[i]
	t.completed[fc.Name] = slices.Delete(pending, i, i+1)
	return sid, true
}

func (t *Translator) openStream(fc native.FunctionCall) []events.Event {
	id := fc.ID
	if id == "" {
		id = t.nextID("call")
	}
	t.streamID = id
	t.streamName = fc.Name
	t.args.Reset()

	out := t.closeText()
	if ann := t.predict.Announce(fc.Name); ann != nil {
		out = append(out, ann)
	}
	out = append(out, events.NewToolCallStartEvent(id, fc.Name))
	t.registry.MarkEmitted(id)
	t.callNames[id] = fc.Name
	return append(out, t.appendFragments(fc.PartialArgs)...)
}

func (t *Translator) continueStream(fc native.FunctionCall) []events.Event {
	out := t.appendFragments(fc.PartialArgs)
	if fc.Name == "" && !fc.Continues() {
		out = append(out, t.closeStream()...)
	}
	return out
}

func (t *Translator) appendFragments(frags []native.ArgFragment) []events.Event {
	var out []events.Event
	for _, f := range frags {
		delta, err := t.args.Append(f.JSONPath, f.Value)
		if err != nil {
			t.log.Warn("dropped malformed argument fragment",
				"tool_call_id", t.streamID, "json_path", f.JSONPath, "error", err)
			continue
		}
		if delta == "" {
			continue
		}
		out = append(out, events.NewToolCallArgsEvent(t.streamID, delta))
	}
	return out
}

func (t *Translator) closeStream() []events.Event {
	id, name := t.streamID, t.streamName
	out := []events.Event{events.NewToolCallArgsEvent(id, t.args.Close())}
	if args, err := t.args.Value(); err == nil {
		t.predict.Accumulate(name, args)
	} else {
		t.log.Warn("streamed arguments did not decode", "tool_call_id", id, "error", err)
	}
	if t.predict.DefersEnd(name) {
		t.deferredEnds[id] = true
	} else {
		out = append(out, events.NewToolCallEndEvent(id))
	}
	t.completed[name] = append(t.completed[name], id)
	t.streamID = ""
	t.streamName = ""
	t.args.Reset()
	return out
}

func (t *Translator) emitComplete(fc native.FunctionCall) []events.Event {
	id := fc.ID
	if id == "" {
		id = t.nextID("call")
	}
	args, err := fc.Arguments()
	if err != nil {
		t.log.Warn("tool call arguments did not decode", "tool_call_id", id, "tool", fc.Name, "error", err)
	}

	out := t.closeText()
	if ann := t.predict.Announce(fc.Name); ann != nil {
		out = append(out, ann)
	}
	out = append(out,
		events.NewToolCallStartEvent(id, fc.Name),
		events.NewToolCallArgsEvent(id, fc.ArgumentsJSON()),
		events.NewToolCallEndEvent(id),
	)
	t.registry.MarkEmitted(id)
	t.callNames[id] = fc.Name
	t.predict.Accumulate(fc.Name, args)
	return out
}

func (t *Translator) translateResponse(ev *native.Event, fr native.FunctionResponse) []events.Event {
	id := t.StreamingID(fr.ID)
	var out []events.Event
	if t.deferredEnds[id] {
		out = append(out, events.NewToolCallEndEvent(id))
		delete(t.deferredEnds, id)
	}
	switch {
	case ev.IsLongRunning(fr.ID), slices.Contains(t.longRunning, fr.ID):
		// the client supplies the result of a long-running call
		return out
	case t.registry.External().Has(fr.ID):
		return out
	case !t.registry.Emitted().Has(id):
		return out
	}
	content, err := json.Marshal(fr.Response)
	if err != nil {
		t.log.Warn("function response did not encode", "tool_call_id", id, "error", err)
	} else {
		out = append(out, events.NewToolCallResultEvent(t.nextID("result"), id, string(content)))
	}
	name := t.callNames[id]
	if name == "" {
		name = fr.Name
	}
	return append(out, t.confirmChange(id, name)...)
}

// confirmChange calls the confirm tools configured for a tool that has
// returned, at most once per completed call.
func (t *Translator) confirmChange(callID, tool string) []events.Event {
	if t.confirmed[callID] {
		return nil
	}
	var out []events.Event
	var snapshot map[string]any
	called := make(map[string]bool)
	for _, m := range t.predict.Mappings(tool) {
		if !m.confirms() || called[m.ConfirmTool] {
			continue
		}
		if snapshot == nil {
			snapshot = t.predict.Snapshot()
		}
		value, ok := snapshot[m.StateKey]
		args, err := json.Marshal(m.confirmArgs(value, ok))
		if err != nil {
			t.log.Warn("confirm tool arguments did not encode", "tool", m.ConfirmTool, "error", err)
			continue
		}
		called[m.ConfirmTool] = true
		id := t.nextID("confirm")
		out = append(out,
			events.NewToolCallStartEvent(id, m.ConfirmTool),
			events.NewToolCallArgsEvent(id, string(args)),
			events.NewToolCallEndEvent(id),
		)
		t.registry.MarkEmitted(id)
		t.confirmIDs = append(t.confirmIDs, id)
		t.log.Debug("requested confirmation", "tool_call_id", id, "tool", m.ConfirmTool, "for", callID)
	}
	if len(called) > 0 {
		t.confirmed[callID] = true
	}
	return out
}

func (t *Translator) nextID(kind string) string {
	t.seq++
	if t.runID == "" {
		return fmt.Sprintf("%s-%d", kind, t.seq)
	}
	return fmt.Sprintf("%s-%s-%d", kind, t.runID, t.seq)
}

// stateDelta builds a STATE_DELTA with one JSON-Patch op per key, in key order.
func stateDelta(delta map[string]any) events.Event {
	if len(delta) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(delta))
	ops := make([]events.JSONPatchOperation, 0, len(keys))
	for _, k := range keys {
		path := "/" + pointerEscaper.Replace(k)
		if delta[k] == nil {
			ops = append(ops, events.JSONPatchOperation{Op: "remove", Path: path})
			continue
		}
		ops = append(ops, events.JSONPatchOperation{Op: "add", Path: path, Value: delta[k]})
	}
	return events.NewStateDeltaEvent(ops)
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
