package agui

import (
	"encoding/json"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/agbridge/dedup"
	"github.com/spetersoncode/agbridge/native"
)

var documentMapping = PredictStateMapping{
	StateKey: "document",
	Tool:     "write_document_local",
	Argument: "document",
}

func TestTranslator_NilEvent(t *testing.T) {
	tr := NewTranslator()
	assert.Empty(t, tr.Translate(nil, "t", "r"))
	assert.Empty(t, tr.TranslateLongRunning(nil))
}

func TestTranslator_ConfirmedCall(t *testing.T) {
	tr := NewTranslator()
	out := tr.Translate(confirmed(native.FunctionCall{
		ID: "fc-1", Name: "search", Args: map[string]any{"q": "weather"},
	}), "thread-1", "run-1")

	assert.Equal(t, []string{"TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_END"}, typesOf(out))
	ws := decode(t, out)
	assert.Equal(t, "fc-1", ws[0].str("toolCallId"))
	assert.Equal(t, "search", ws[0].str("toolCallName"))
	assert.JSONEq(t, `{"q":"weather"}`, ws[1].str("delta"))
	assert.True(t, tr.EmittedIDs().Has("fc-1"))
}

func TestTranslator_PartialCallWithoutStreaming(t *testing.T) {
	tr := NewTranslator()
	out := tr.Translate(partial(native.FunctionCall{
		ID: "fc-1", Name: "search", Args: map[string]any{"q": "wea"},
	}), "thread-1", "run-1")
	assert.Empty(t, out)
	assert.False(t, tr.EmittedIDs().Has("fc-1"), "suppressed calls are not recorded")

	out = tr.Translate(confirmed(native.FunctionCall{
		ID: "fc-1", Name: "search", Args: map[string]any{"q": "weather"},
	}), "thread-1", "run-1")
	assert.Len(t, out, 3)
}

func TestTranslator_DuplicateConfirmedCall(t *testing.T) {
	tr := NewTranslator()
	call := native.FunctionCall{ID: "fc-1", Name: "search"}
	assert.Len(t, tr.Translate(confirmed(call), "t", "r"), 3)
	assert.Empty(t, tr.Translate(confirmed(call), "t", "r"))
}

func TestTranslator_StreamingArgs(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))

	out := translateAll(tr,
		partial(firstChunk("stream-1", "write_document_local")),
		partial(chunk("$.document", "Hello ")),
		partial(chunk("$.document", "World")),
		partial(endMarker()),
	)

	assert.Equal(t, []string{
		"TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_ARGS", "TOOL_CALL_ARGS", "TOOL_CALL_END",
	}, typesOf(out))

	ws := decode(t, out)
	assert.Equal(t, `{"document":"Hello `, ws[1].str("delta"))
	assert.Equal(t, "World", ws[2].str("delta"))
	assert.Equal(t, `"}`, ws[3].str("delta"))

	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(argsFor(ws, "stream-1")), &args))
	assert.Equal(t, map[string]any{"document": "Hello World"}, args)
}

func TestTranslator_StreamingEscapesValues(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	out := translateAll(tr,
		partial(firstChunk("s", "write_document_local")),
		partial(chunk("$.document", "She said \"hi\"\n")),
		partial(chunk("$.document", "then left")),
		partial(endMarker()),
	)

	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(argsFor(decode(t, out), "s")), &args))
	assert.Equal(t, "She said \"hi\"\nthen left", args["document"])
}

func TestTranslator_StreamingWithoutFragments(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	out := translateAll(tr,
		partial(firstChunk("s", "noop")),
		partial(endMarker()),
	)
	ws := decode(t, out)
	assert.Equal(t, "{}", argsFor(ws, "s"))
	assert.Equal(t, 1, count(ws, events.EventTypeToolCallEnd))
}

func TestTranslator_StreamingConfirmedIsSuppressedAndRemapped(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))

	out := translateAll(tr,
		partial(firstChunk("stream-id", "write_document_local")),
		partial(chunk("$.document", "Draft")),
		partial(endMarker()),
		confirmed(native.FunctionCall{
			ID: "confirmed-id", Name: "write_document_local",
			Args: map[string]any{"document": "Draft"},
		}),
	)

	ws := decode(t, out)
	assert.Equal(t, 1, count(ws, events.EventTypeToolCallStart))
	assert.Equal(t, 1, count(ws, events.EventTypeToolCallEnd))
	assert.Equal(t, "stream-id", tr.StreamingID("confirmed-id"))
	assert.Equal(t, "unknown", tr.StreamingID("unknown"))
	assert.Equal(t, map[string]string{"confirmed-id": "stream-id"}, tr.ConfirmedToStreaming())
	assert.True(t, tr.EmittedIDs().Has("confirmed-id"))
}

func TestTranslator_StreamingConfirmedBeforeEndMarker(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	out := translateAll(tr,
		partial(firstChunk("s", "write_document_local")),
		partial(chunk("$.document", "x")),
		confirmed(native.FunctionCall{ID: "c", Name: "write_document_local", Args: map[string]any{"document": "x"}}),
	)
	ws := decode(t, out)
	assert.Equal(t, 1, count(ws, events.EventTypeToolCallStart))
	assert.Equal(t, 1, count(ws, events.EventTypeToolCallEnd))
	assert.Equal(t, `{"document":"x"}`, argsFor(ws, "s"))
	assert.Equal(t, "s", tr.StreamingID("c"))
}

func TestTranslator_StrayChunksDropped(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	out := translateAll(tr,
		partial(chunk("$.document", "orphan")),
		partial(endMarker()),
	)
	assert.Empty(t, out)
}

func TestTranslator_MalformedFragmentDropped(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	bad := native.FunctionCall{
		PartialArgs: []native.ArgFragment{
			{JSONPath: "document", Value: "no-dollar"},
			{JSONPath: "$.count", Value: 3.0},
		},
		WillContinue: native.Bool(true),
	}
	out := translateAll(tr,
		partial(firstChunk("s", "write_document_local")),
		partial(bad),
		partial(chunk("$.document", "ok")),
		partial(endMarker()),
	)
	assert.Equal(t, `{"document":"ok"}`, argsFor(decode(t, out), "s"))
}

func TestTranslator_StreamingSkipsLongRunning(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	ev := partial(firstChunk("lro-1", "approve"))
	ev.LongRunningToolIDs = []string{"lro-1"}
	assert.Empty(t, tr.Translate(ev, "t", "r"))
	assert.False(t, tr.Streaming())
}

func TestTranslator_PredictState(t *testing.T) {
	t.Run("emitted before first start and only once", func(t *testing.T) {
		tr := NewTranslator(WithPredictState(documentMapping))
		out := translateAll(tr,
			confirmed(native.FunctionCall{ID: "a", Name: "write_document_local", Args: map[string]any{"document": "v1"}}),
			confirmed(native.FunctionCall{ID: "b", Name: "write_document_local", Args: map[string]any{"document": "v2"}}),
		)
		ws := decode(t, out)
		require.Equal(t, "CUSTOM", ws[0].str("type"))
		assert.Equal(t, PredictStateEventName, ws[0].str("name"))
		assert.Equal(t, "TOOL_CALL_START", ws[1].str("type"))
		assert.Equal(t, 1, count(ws, events.EventTypeCustom))

		value, ok := ws[0]["value"].([]any)
		require.True(t, ok)
		require.Len(t, value, 1)
		assert.Equal(t, map[string]any{
			"state_key": "document", "tool": "write_document_local", "tool_argument": "document",
		}, value[0])

		assert.Equal(t, map[string]any{"document": "v2"}, tr.PredictedState())
	})

	t.Run("not emitted for unmapped tools", func(t *testing.T) {
		tr := NewTranslator(WithPredictState(documentMapping))
		out := tr.Translate(confirmed(native.FunctionCall{ID: "a", Name: "search"}), "t", "r")
		assert.Equal(t, 0, count(decode(t, out), events.EventTypeCustom))
	})

	t.Run("streamed call announces before start", func(t *testing.T) {
		tr := NewTranslator(WithStreamingArgs(true), WithPredictState(documentMapping))
		out := translateAll(tr,
			partial(firstChunk("s", "write_document_local")),
			partial(chunk("$.document", "Hi")),
			partial(endMarker()),
		)
		assert.Equal(t, []string{"CUSTOM", "TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_ARGS", "TOOL_CALL_END"}, typesOf(out))
		assert.Equal(t, map[string]any{"document": "Hi"}, tr.PredictedState())
	})

	t.Run("whole arguments without argument name", func(t *testing.T) {
		tr := NewTranslator(WithPredictState(PredictStateMapping{StateKey: "plan", Tool: "set_plan"}))
		tr.Translate(confirmed(native.FunctionCall{ID: "a", Name: "set_plan", Args: map[string]any{"steps": []any{"a"}}}), "t", "r")
		assert.Equal(t, map[string]any{"plan": map[string]any{"steps": []any{"a"}}}, tr.PredictedState())
	})
}

func TestTranslator_DeferredToolCallEnd(t *testing.T) {
	mapping := documentMapping
	mapping.DeferToolCallEnd = true

	t.Run("released by the tool result", func(t *testing.T) {
		tr := NewTranslator(WithStreamingArgs(true), WithPredictState(mapping))
		out := tr.Translate(partial(firstChunk("s", "write_document_local")), "t", "r")
		out = append(out, tr.Translate(partial(chunk("$.document", "x")), "t", "r")...)
		out = append(out, tr.Translate(partial(endMarker()), "t", "r")...)
		assert.Equal(t, 0, count(decode(t, out), events.EventTypeToolCallEnd))

		resp := tr.Translate(&native.Event{
			Author: "writer",
			FunctionResponses: []native.FunctionResponse{
				{ID: "s", Name: "write_document_local", Response: map[string]any{"ok": true}},
			},
		}, "t", "r")
		assert.Equal(t, []string{"TOOL_CALL_END", "TOOL_CALL_RESULT"}, typesOf(resp))
		ws := decode(t, resp)
		assert.Equal(t, "s", ws[1].str("toolCallId"))
		assert.JSONEq(t, `{"ok":true}`, ws[1].str("content"))
		assert.Empty(t, tr.Finalize())
	})

	t.Run("released by finalize", func(t *testing.T) {
		tr := NewTranslator(WithStreamingArgs(true), WithPredictState(mapping))
		tr.Translate(partial(firstChunk("s", "write_document_local")), "t", "r")
		tr.Translate(partial(endMarker()), "t", "r")
		assert.Equal(t, []string{"TOOL_CALL_END"}, typesOf(tr.Finalize()))
	})
}

func TestTranslator_ConfirmTool(t *testing.T) {
	mapping := documentMapping
	mapping.ConfirmTool = "write_document"
	mapping.EmitConfirmTool = true

	response := func(id string) *native.Event {
		return &native.Event{
			Author: "writer",
			FunctionResponses: []native.FunctionResponse{
				{ID: id, Name: "write_document_local", Response: map[string]any{"status": "success"}},
			},
		}
	}

	t.Run("called after the mapped tool returns", func(t *testing.T) {
		tr := NewTranslator(WithPredictState(mapping))
		tr.Translate(confirmed(native.FunctionCall{ID: "a", Name: "write_document_local", Args: map[string]any{"document": "Hello"}}), "t", "r")

		out := tr.Translate(response("a"), "t", "r")
		assert.Equal(t, []string{"TOOL_CALL_RESULT", "TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_END"}, typesOf(out))
		ws := decode(t, out)
		id := ws[1].str("toolCallId")
		require.NotEmpty(t, id)
		assert.Equal(t, "write_document", ws[1].str("toolCallName"))
		assert.JSONEq(t, `{"document":"Hello"}`, argsFor(ws, id))
		assert.Equal(t, []string{id}, tr.ConfirmIDs())
		assert.True(t, tr.EmittedIDs().Has(id))

		assert.Equal(t, []string{"TOOL_CALL_RESULT"}, typesOf(tr.Translate(response("a"), "t", "r")),
			"a repeated response is not confirmed again")
	})

	t.Run("follows the deferred end of a streamed call", func(t *testing.T) {
		deferred := mapping
		deferred.DeferToolCallEnd = true
		tr := NewTranslator(WithStreamingArgs(true), WithPredictState(deferred))
		for _, ev := range []*native.Event{
			partial(firstChunk("s", "write_document_local")),
			partial(chunk("$.document", "Draft")),
			partial(endMarker()),
		} {
			tr.Translate(ev, "t", "r")
		}

		out := tr.Translate(response("s"), "t", "r")
		assert.Equal(t, []string{"TOOL_CALL_END", "TOOL_CALL_RESULT", "TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_END"}, typesOf(out))
		ws := decode(t, out)
		assert.Equal(t, "s", ws[0].str("toolCallId"))
		assert.JSONEq(t, `{"document":"Draft"}`, argsFor(ws, ws[2].str("toolCallId")))
	})

	t.Run("disabled without the flag", func(t *testing.T) {
		off := mapping
		off.EmitConfirmTool = false
		tr := NewTranslator(WithPredictState(off))
		tr.Translate(confirmed(native.FunctionCall{ID: "a", Name: "write_document_local", Args: map[string]any{"document": "x"}}), "t", "r")
		assert.Equal(t, []string{"TOOL_CALL_RESULT"}, typesOf(tr.Translate(response("a"), "t", "r")))
		assert.Empty(t, tr.ConfirmIDs())
	})

	t.Run("cleared by reset", func(t *testing.T) {
		tr := NewTranslator(WithPredictState(mapping))
		tr.Translate(confirmed(native.FunctionCall{ID: "a", Name: "write_document_local", Args: map[string]any{"document": "x"}}), "t", "r")
		tr.Translate(response("a"), "t", "r")
		require.Len(t, tr.ConfirmIDs(), 1)
		tr.Reset()
		assert.Empty(t, tr.ConfirmIDs())
	})
}

func TestTranslator_ToolResultUsesStreamingID(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	translateAll(tr,
		partial(firstChunk("stream-id", "lookup")),
		partial(endMarker()),
		confirmed(native.FunctionCall{ID: "confirmed-id", Name: "lookup"}),
	)
	out := tr.Translate(&native.Event{FunctionResponses: []native.FunctionResponse{
		{ID: "confirmed-id", Name: "lookup", Response: map[string]any{"v": 1}},
	}}, "t", "r")
	ws := decode(t, out)
	require.Len(t, ws, 1)
	assert.Equal(t, "TOOL_CALL_RESULT", ws[0].str("type"))
	assert.Equal(t, "stream-id", ws[0].str("toolCallId"))
}

func TestTranslator_ToolResultForUnannouncedCall(t *testing.T) {
	tr := NewTranslator()
	out := tr.Translate(&native.Event{FunctionResponses: []native.FunctionResponse{
		{ID: "never-seen", Name: "lookup", Response: map[string]any{"v": 1}},
	}}, "t", "r")
	assert.Empty(t, out)
}

func TestTranslator_Suppression(t *testing.T) {
	t.Run("client emitted set is read live", func(t *testing.T) {
		clientEmitted := dedup.NewSet()
		tr := NewTranslator(WithClientEmitted(clientEmitted))
		clientEmitted.Add("fc-1")
		assert.Empty(t, tr.Translate(confirmed(native.FunctionCall{ID: "fc-1", Name: "approve"}), "t", "r"))
	})

	t.Run("client tool names when resumable", func(t *testing.T) {
		tr := NewTranslator(WithResumable(true), WithClientToolNames("approve"))
		assert.Empty(t, tr.Translate(confirmed(native.FunctionCall{ID: "fc-1", Name: "approve"}), "t", "r"))
		assert.Len(t, tr.Translate(confirmed(native.FunctionCall{ID: "fc-2", Name: "search"}), "t", "r"), 3)
	})

	t.Run("client tool names ignored when not resumable", func(t *testing.T) {
		tr := NewTranslator(WithClientToolNames("approve"))
		assert.Len(t, tr.Translate(confirmed(native.FunctionCall{ID: "fc-1", Name: "approve"}), "t", "r"), 3)
	})

	t.Run("shared emitted set receives ids", func(t *testing.T) {
		emitted := dedup.NewSet()
		tr := NewTranslator(WithEmittedSet(emitted))
		tr.Translate(confirmed(native.FunctionCall{ID: "fc-1", Name: "search"}), "t", "r")
		assert.True(t, emitted.Has("fc-1"))
	})
}

func TestTranslator_LongRunning(t *testing.T) {
	lro := func() *native.Event {
		ev := confirmed(native.FunctionCall{ID: "lro-1", Name: "approve_plan", Args: map[string]any{"steps": 2.0}})
		ev.LongRunningToolIDs = []string{"lro-1"}
		return ev
	}

	t.Run("emits a complete triple", func(t *testing.T) {
		tr := NewTranslator()
		out := tr.TranslateLongRunning(lro())
		assert.Equal(t, []string{"TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_END"}, typesOf(out))
		assert.JSONEq(t, `{"steps":2}`, decode(t, out)[1].str("delta"))
		assert.Equal(t, []string{"lro-1"}, tr.LongRunningIDs())
	})

	t.Run("translate skips long-running calls", func(t *testing.T) {
		tr := NewTranslator()
		assert.Empty(t, tr.Translate(lro(), "t", "r"))
	})

	t.Run("later confirmed sighting without ids is skipped", func(t *testing.T) {
		tr := NewTranslator()
		tr.TranslateLongRunning(lro())
		plain := confirmed(native.FunctionCall{ID: "lro-1", Name: "approve_plan"})
		assert.Empty(t, tr.Translate(plain, "t", "r"))
	})

	t.Run("suppressed in favour of the client proxy", func(t *testing.T) {
		clientEmitted := dedup.NewSet("lro-1")
		tr := NewTranslator(WithClientEmitted(clientEmitted))
		assert.Empty(t, tr.TranslateLongRunning(lro()))
		assert.Equal(t, []string{"lro-1"}, tr.LongRunningIDs(), "occurrence is still recorded")
	})

	t.Run("non long-running calls on the event are ignored", func(t *testing.T) {
		tr := NewTranslator()
		ev := lro()
		ev.FunctionCalls = append(ev.FunctionCalls, native.FunctionCall{ID: "other", Name: "search"})
		out := tr.TranslateLongRunning(ev)
		assert.Equal(t, 1, count(decode(t, out), events.EventTypeToolCallStart))
	})

	t.Run("result of a long-running call is left to the client", func(t *testing.T) {
		tr := NewTranslator()
		tr.TranslateLongRunning(lro())
		out := tr.Translate(&native.Event{FunctionResponses: []native.FunctionResponse{
			{ID: "lro-1", Name: "approve_plan", Response: map[string]any{"status": "pending"}},
		}}, "t", "r")
		assert.Empty(t, out)
	})
}

// Every way a single logical call can reach the translator yields exactly one
// START/END pair.
func TestTranslator_ExactlyOnceAcrossPaths(t *testing.T) {
	streamed := []*native.Event{
		partial(firstChunk("stream-id", "write_document_local")),
		partial(chunk("$.document", "text")),
		partial(endMarker()),
	}
	confirmedEv := func(id string) *native.Event {
		return confirmed(native.FunctionCall{ID: id, Name: "write_document_local", Args: map[string]any{"document": "text"}})
	}
	lroEv := func(id string) *native.Event {
		ev := confirmedEv(id)
		ev.LongRunningToolIDs = []string{id}
		return ev
	}

	tests := []struct {
		name string
		run  func(tr *Translator, proxy *dedup.Set) []events.Event
	}{
		{"streamed then confirmed", func(tr *Translator, _ *dedup.Set) []events.Event {
			return translateAll(tr, append(streamed, confirmedEv("confirmed-id"))...)
		}},
		{"long-running then confirmed", func(tr *Translator, _ *dedup.Set) []events.Event {
			out := tr.TranslateLongRunning(lroEv("lro-id"))
			return append(out, translateAll(tr, confirmedEv("lro-id"))...)
		}},
		{"confirmed then long-running", func(tr *Translator, _ *dedup.Set) []events.Event {
			out := translateAll(tr, confirmedEv("same-id"))
			return append(out, tr.TranslateLongRunning(lroEv("same-id"))...)
		}},
		{"proxy then long-running", func(tr *Translator, proxy *dedup.Set) []events.Event {
			proxy.Add("lro-id")
			out := tr.TranslateLongRunning(lroEv("lro-id"))
			// the proxy's own emission
			return append(out, events.NewToolCallStartEvent("lro-id", "write_document_local"), events.NewToolCallEndEvent("lro-id"))
		}},
		{"proxy then confirmed", func(tr *Translator, proxy *dedup.Set) []events.Event {
			proxy.Add("p-id")
			out := translateAll(tr, confirmedEv("p-id"))
			return append(out, events.NewToolCallStartEvent("p-id", "write_document_local"), events.NewToolCallEndEvent("p-id"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy := dedup.NewSet()
			tr := NewTranslator(WithStreamingArgs(true), WithClientEmitted(proxy))
			ws := decode(t, tt.run(tr, proxy))
			assert.Equal(t, 1, count(ws, events.EventTypeToolCallStart))
			assert.Equal(t, 1, count(ws, events.EventTypeToolCallEnd))
		})
	}
}

func TestTranslator_StateDelta(t *testing.T) {
	tr := NewTranslator()
	out := tr.Translate(&native.Event{StateDelta: map[string]any{"b/c": 1.0, "a": "x", "gone": nil}}, "t", "r")
	ws := decode(t, out)
	require.Len(t, ws, 1)
	assert.Equal(t, "STATE_DELTA", ws[0].str("type"))
	ops, ok := ws[0]["delta"].([]any)
	require.True(t, ok)
	require.Len(t, ops, 3)
	assert.Equal(t, map[string]any{"op": "add", "path": "/a", "value": "x"}, ops[0])
	assert.Equal(t, "/b~1c", ops[1].(map[string]any)["path"])
	assert.Equal(t, "remove", ops[2].(map[string]any)["op"])
}

func TestTranslator_Reset(t *testing.T) {
	seq := []*native.Event{
		{Author: "writer", Partial: native.Bool(true), Text: []string{"Drafting"}},
		partial(firstChunk("s", "write_document_local")),
		partial(chunk("$.document", "Hello")),
		partial(endMarker()),
		confirmed(native.FunctionCall{ID: "c", Name: "write_document_local", Args: map[string]any{"document": "Hello"}}),
		{Author: "writer", Text: []string{"Done"}, TurnComplete: true},
	}
	opts := []TranslatorOption{WithStreamingArgs(true), WithPredictState(documentMapping)}

	reused := NewTranslator(opts...)
	first := decode(t, translateAll(reused, seq...))
	reused.Reset()
	assert.Empty(t, reused.EmittedIDs().Values())
	assert.Empty(t, reused.PredictedState())
	assert.Empty(t, reused.ConfirmedToStreaming())
	second := decode(t, translateAll(reused, seq...))

	fresh := decode(t, translateAll(NewTranslator(opts...), seq...))
	assert.Equal(t, fresh, second)
	assert.Equal(t, first, second)
}

func TestTranslator_ResetDiscardsOpenStream(t *testing.T) {
	tr := NewTranslator(WithStreamingArgs(true))
	tr.Translate(partial(firstChunk("s", "write_document_local")), "t", "r")
	tr.Translate(partial(chunk("$.document", "half")), "t", "r")
	tr.Reset()

	assert.False(t, tr.Streaming())
	assert.Empty(t, tr.Translate(partial(chunk("$.document", "rest")), "t", "r"))
}
