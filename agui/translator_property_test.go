package agui

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/spetersoncode/agbridge/native"
)

func streamedCall(fragments []string) []*native.Event {
	evs := []*native.Event{partial(firstChunk("s", "write_document_local"))}
	for _, f := range fragments {
		evs = append(evs, partial(chunk("$.document", f)))
	}
	return append(evs,
		partial(endMarker()),
		confirmed(native.FunctionCall{
			ID: "c", Name: "write_document_local",
			Args: map[string]any{"document": strings.Join(fragments, "")},
		}),
	)
}

func deltaOf(ev events.Event) string {
	data, err := ev.ToJSON()
	if err != nil {
		return ""
	}
	var w struct {
		Delta string `json:"delta"`
	}
	_ = json.Unmarshal(data, &w)
	return w.Delta
}

func wireJSON(evs []events.Event) string {
	var b strings.Builder
	for _, ev := range evs {
		data, err := ev.ToJSON()
		if err != nil {
			return ""
		}
		var m map[string]any
		if json.Unmarshal(data, &m) != nil {
			return ""
		}
		delete(m, "timestamp")
		normalized, _ := json.Marshal(m)
		b.Write(normalized)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestTranslator_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("streamed deltas rebuild the argument object", prop.ForAll(
		func(fragments []string) bool {
			tr := NewTranslator(WithStreamingArgs(true))
			var text strings.Builder
			starts := 0
			for _, ev := range streamedCall(fragments) {
				for _, out := range tr.Translate(ev, "t", "r") {
					switch out.Type() {
					case events.EventTypeToolCallArgs:
						text.WriteString(deltaOf(out))
					case events.EventTypeToolCallStart:
						starts++
					}
				}
			}
			var got map[string]any
			if err := json.Unmarshal([]byte(text.String()), &got); err != nil {
				return false
			}
			if len(fragments) == 0 {
				return starts == 1 && len(got) == 0
			}
			return starts == 1 && got["document"] == strings.Join(fragments, "")
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("reset matches a fresh translator", prop.ForAll(
		func(first, second []string) bool {
			reused := NewTranslator(WithStreamingArgs(true), WithPredictState(documentMapping))
			for _, ev := range streamedCall(first) {
				reused.Translate(ev, "t", "r")
			}
			reused.Reset()

			fresh := NewTranslator(WithStreamingArgs(true), WithPredictState(documentMapping))
			var a, b []events.Event
			for _, ev := range streamedCall(second) {
				a = append(a, reused.Translate(ev, "t", "r")...)
				b = append(b, fresh.Translate(ev, "t", "r")...)
			}
			a = append(a, reused.Finalize()...)
			b = append(b, fresh.Finalize()...)
			return wireJSON(a) == wireJSON(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
