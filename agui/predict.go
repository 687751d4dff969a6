package agui

import (
	"maps"
	"sync"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// PredictStateEventName is the CUSTOM event name AG-UI clients use to learn
// which tool arguments they can render as optimistic state.
const PredictStateEventName = "PredictState"

// PredictStateMapping ties a tool argument to a state key.
// When Argument is empty the whole argument object becomes the state value.
type PredictStateMapping struct {
	StateKey string `json:"state_key" yaml:"state_key"`
	Tool     string `json:"tool" yaml:"tool"`
	Argument string `json:"tool_argument,omitempty" yaml:"tool_argument,omitempty"`

	// DeferToolCallEnd withholds TOOL_CALL_END for streamed calls until the
	// tool's result is observed.
	DeferToolCallEnd bool `json:"-" yaml:"defer_tool_call_end,omitempty"`

	// ConfirmTool names a client tool that is called once Tool has returned,
	// with the predicted value as its argument. Frontends use it to ask the
	// user to accept the change. It is only called when EmitConfirmTool is set.
	ConfirmTool     string `json:"-" yaml:"confirm_tool,omitempty"`
	EmitConfirmTool bool   `json:"-" yaml:"emit_confirm_tool,omitempty"`
}

func (m PredictStateMapping) confirms() bool {
	return m.EmitConfirmTool && m.ConfirmTool != ""
}

// confirmArgs builds the confirm tool's arguments from a predicted value.
func (m PredictStateMapping) confirmArgs(value any, ok bool) map[string]any {
	if !ok {
		return map[string]any{}
	}
	if m.Argument != "" {
		return map[string]any{m.Argument: value}
	}
	if args, isMap := value.(map[string]any); isMap {
		return maps.Clone(args)
	}
	return map[string]any{}
}

func (m PredictStateMapping) payload() map[string]any {
	p := map[string]any{"state_key": m.StateKey, "tool": m.Tool}
	if m.Argument != "" {
		p["tool_argument"] = m.Argument
	}
	return p
}

// PredictiveState tracks predictive-state announcements and the mirror of
// state predicted from tool arguments for one run.
//
// The translator and the client proxy share one instance, so every method is
// safe for concurrent use. A nil *PredictiveState has no mappings.
type PredictiveState struct {
	mu        sync.Mutex
	mappings  []PredictStateMapping
	announced map[string]bool
	mirror    map[string]any
}

// NewPredictiveState creates predictive state for the given mappings.
func NewPredictiveState(mappings []PredictStateMapping) *PredictiveState {
	return &PredictiveState{
		mappings:  mappings,
		announced: make(map[string]bool),
		mirror:    make(map[string]any),
	}
}

// Mappings returns the mappings configured for a tool.
func (p *PredictiveState) Mappings(tool string) []PredictStateMapping {
	if p == nil {
		return nil
	}
	var out []PredictStateMapping
	for _, m := range p.mappings {
		if m.Tool == tool {
			out = append(out, m)
		}
	}
	return out
}

// DefersEnd reports whether any mapping for the tool defers TOOL_CALL_END.
func (p *PredictiveState) DefersEnd(tool string) bool {
	for _, m := range p.Mappings(tool) {
		if m.DeferToolCallEnd {
			return true
		}
	}
	return false
}

// Announce returns the PredictState CUSTOM event for a tool the first time it
// is called in a run, and nil afterwards or when the tool has no mapping.
func (p *PredictiveState) Announce(tool string) events.Event {
	ms := p.Mappings(tool)
	if len(ms) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.announced[tool] {
		return nil
	}
	p.announced[tool] = true

	value := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		value = append(value, m.payload())
	}
	return events.NewCustomEvent(PredictStateEventName, events.WithValue(value))
}

// Accumulate folds a tool call's arguments into the mirror.
func (p *PredictiveState) Accumulate(tool string, args map[string]any) {
	ms := p.Mappings(tool)
	if len(ms) == 0 || args == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range ms {
		if m.Argument == "" {
			p.mirror[m.StateKey] = maps.Clone(args)
			continue
		}
		if v, ok := args[m.Argument]; ok {
			p.mirror[m.StateKey] = v
		}
	}
}

// Snapshot returns a copy of the mirror.
func (p *PredictiveState) Snapshot() map[string]any {
	if p == nil {
		return map[string]any{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.mirror)
}

// Reset forgets announcements and the mirror.
func (p *PredictiveState) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.announced)
	clear(p.mirror)
}

// MergeState overlays the predictive mirror on a session state. Keys present
// in the mirror win; every other key of base is kept.
func MergeState(base, predicted map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(predicted))
	maps.Copy(out, base)
	maps.Copy(out, predicted)
	return out
}
