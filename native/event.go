// Package native models the events an ADK-style agent runtime produces.
//
// The runtime streams [Event] values one at a time for the duration of a run.
// Partial events are previews that the runtime does not persist. Confirmed
// events are durable. A nil Partial flag means confirmed, so older runtimes
// that never set it keep working.
//
// Every accessor on [Event] is nil-safe. A malformed event reads as an event
// with no text and no function calls instead of failing.
package native

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Event is one record from the native runtime stream.
type Event struct {
	ID           string
	InvocationID string
	Author       string

	// Partial marks a streaming preview. Nil means confirmed.
	Partial *bool

	// TurnComplete marks the end of the author's turn.
	TurnComplete bool

	Text               []string
	FunctionCalls      []FunctionCall
	FunctionResponses  []FunctionResponse
	LongRunningToolIDs []string

	// StateDelta carries session state changes made by this event.
	StateDelta map[string]any
}

// FunctionCall is a function-call record. A complete call carries Args or
// RawArgs; a streamed call carries PartialArgs and WillContinue.
type FunctionCall struct {
	ID   string
	Name string

	Args    map[string]any
	RawArgs string

	PartialArgs  []ArgFragment
	WillContinue *bool
}

// ArgFragment is one incremental piece of a streamed argument object.
type ArgFragment struct {
	JSONPath string
	Value    any
}

// FunctionResponse is the result of a function call.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Bool returns a pointer to b, for populating optional flags.
func Bool(b bool) *bool {
	return &b
}

// IsPartial reports whether the event is a streaming preview.
func (e *Event) IsPartial() bool {
	return e != nil && e.Partial != nil && *e.Partial
}

// Calls returns the event's function calls.
func (e *Event) Calls() []FunctionCall {
	if e == nil {
		return nil
	}
	return e.FunctionCalls
}

// Responses returns the event's function responses.
func (e *Event) Responses() []FunctionResponse {
	if e == nil {
		return nil
	}
	return e.FunctionResponses
}

// Texts returns the non-empty text fragments of the event.
func (e *Event) Texts() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Text))
	for _, t := range e.Text {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinedText returns all text fragments concatenated.
func (e *Event) JoinedText() string {
	return strings.Join(e.Texts(), "")
}

// IsLongRunning reports whether id is one of the event's long-running tool ids.
func (e *Event) IsLongRunning(id string) bool {
	return e != nil && id != "" && slices.Contains(e.LongRunningToolIDs, id)
}

// LongRunningCalls returns the calls whose ids are listed as long-running.
func (e *Event) LongRunningCalls() []FunctionCall {
	var out []FunctionCall
	for _, fc := range e.Calls() {
		if e.IsLongRunning(fc.ID) {
			out = append(out, fc)
		}
	}
	return out
}

// HasLongRunningCall reports whether any call on the event is long-running.
func (e *Event) HasLongRunningCall() bool {
	return len(e.LongRunningCalls()) > 0
}

// Continues reports whether more fragments of this call will follow.
func (c FunctionCall) Continues() bool {
	return c.WillContinue != nil && *c.WillContinue
}

// Arguments returns the complete argument object. RawArgs is decoded when Args
// is unset; text that is not valid JSON goes through jsonrepair first.
func (c FunctionCall) Arguments() (map[string]any, error) {
	if c.Args != nil || c.RawArgs == "" {
		return c.Args, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(c.RawArgs), &out); err == nil {
		return out, nil
	}
	fixed, err := jsonrepair.JSONRepair(c.RawArgs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fixed), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ArgumentsJSON returns the arguments encoded as a JSON object, "{}" when
// there are none or they cannot be decoded.
func (c FunctionCall) ArgumentsJSON() string {
	args, err := c.Arguments()
	if err != nil || args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
