package agui

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/agbridge/native"
)

// wire is an AG-UI event decoded from its JSON form, without the timestamp.
type wire map[string]any

func decode(t *testing.T, evs []events.Event) []wire {
	t.Helper()
	out := make([]wire, 0, len(evs))
	for _, ev := range evs {
		data, err := ev.ToJSON()
		require.NoError(t, err)
		var w wire
		require.NoError(t, json.Unmarshal(data, &w))
		delete(w, "timestamp")
		out = append(out, w)
	}
	return out
}

func typesOf(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, string(ev.Type()))
	}
	return out
}

func (w wire) str(key string) string {
	s, _ := w[key].(string)
	return s
}

// argsFor concatenates every TOOL_CALL_ARGS delta for a tool-call id.
func argsFor(ws []wire, id string) string {
	var b strings.Builder
	for _, w := range ws {
		if w.str("type") == string(events.EventTypeToolCallArgs) && w.str("toolCallId") == id {
			b.WriteString(w.str("delta"))
		}
	}
	return b.String()
}

func count(ws []wire, typ events.EventType) int {
	n := 0
	for _, w := range ws {
		if w.str("type") == string(typ) {
			n++
		}
	}
	return n
}

func partial(calls ...native.FunctionCall) *native.Event {
	return &native.Event{Author: "writer", Partial: native.Bool(true), FunctionCalls: calls}
}

func confirmed(calls ...native.FunctionCall) *native.Event {
	return &native.Event{Author: "writer", FunctionCalls: calls}
}

func firstChunk(id, name string) native.FunctionCall {
	return native.FunctionCall{ID: id, Name: name, WillContinue: native.Bool(true)}
}

func chunk(path, value string) native.FunctionCall {
	return native.FunctionCall{
		PartialArgs:  []native.ArgFragment{{JSONPath: path, Value: value}},
		WillContinue: native.Bool(true),
	}
}

func endMarker() native.FunctionCall {
	return native.FunctionCall{}
}

// translateAll feeds events through Translate and appends Finalize.
func translateAll(tr *Translator, evs ...*native.Event) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		out = append(out, tr.Translate(ev, "thread-1", "run-1")...)
	}
	return append(out, tr.Finalize()...)
}
