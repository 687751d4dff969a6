package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/spetersoncode/agbridge/native"
	"github.com/spetersoncode/agbridge/runner"
	"github.com/spetersoncode/agbridge/store"
)

const demoAuthor = "demo"

// demoRuntime is a scripted agent for trying the server without a model.
//
//	/tool <name> <text>   calls client tool <name> with {"input": text} and pauses
//	/state <key>=<value>  sets session state
//	anything else         is echoed back word by word
//
// A run that only carries tool results reports the latest result.
type demoRuntime struct {
	store store.Store
	delay time.Duration
}

func newDemoRuntime(st store.Store, delay time.Duration) *demoRuntime {
	return &demoRuntime{store: st, delay: delay}
}

// Run implements runner.Runtime.
func (d *demoRuntime) Run(ctx context.Context, req runner.RunRequest) (runner.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan *native.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(ch)
		send := func(ev *native.Event) error {
			select {
			case ch <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := d.script(ctx, req, send); err != nil {
			errs <- err
		}
	}()

	return runner.NewChanStream(ch, errs, cancel), nil
}

func (d *demoRuntime) script(ctx context.Context, req runner.RunRequest, send func(*native.Event) error) error {
	invocation := req.InvocationID
	if invocation == "" {
		invocation = "inv-" + uuid.NewString()
	}

	if req.NewMessage == nil {
		reply, err := d.describeLatestResult(ctx, req.SessionID)
		if err != nil {
			return err
		}
		return d.say(ctx, req, invocation, reply, send)
	}

	if err := d.record(ctx, req.SessionID, invocation, "user", req.NewMessage); err != nil {
		return err
	}
	text := strings.TrimSpace(native.ContentText(req.NewMessage))

	switch {
	case strings.HasPrefix(text, "/tool "):
		return d.callTool(ctx, req, invocation, strings.TrimPrefix(text, "/tool "), send)
	case strings.HasPrefix(text, "/state "):
		return d.setState(ctx, req, invocation, strings.TrimPrefix(text, "/state "), send)
	}
	return d.say(ctx, req, invocation, "You said: "+text, send)
}

// say streams reply as partial word events followed by the confirmed text.
func (d *demoRuntime) say(ctx context.Context, req runner.RunRequest, invocation, reply string, send func(*native.Event) error) error {
	words := strings.Fields(reply)
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		err := send(&native.Event{
			ID:           uuid.NewString(),
			InvocationID: invocation,
			Author:       demoAuthor,
			Partial:      native.Bool(true),
			Text:         []string{w},
		})
		if err != nil {
			return err
		}
		if d.delay > 0 {
			select {
			case <-time.After(d.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	content := genai.NewContentFromText(reply, genai.RoleModel)
	if err := d.record(ctx, req.SessionID, invocation, demoAuthor, content); err != nil {
		return err
	}
	return send(&native.Event{
		ID:           uuid.NewString(),
		InvocationID: invocation,
		Author:       demoAuthor,
		Text:         []string{reply},
		TurnComplete: true,
	})
}

func (d *demoRuntime) callTool(ctx context.Context, req runner.RunRequest, invocation, rest string, send func(*native.Event) error) error {
	name, input, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if req.ClientTools == nil || !req.ClientTools.Has(name) {
		return d.say(ctx, req, invocation, fmt.Sprintf("No client tool named %q.", name), send)
	}

	call := native.FunctionCall{
		ID:   "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name: name,
		Args: map[string]any{"input": input},
	}
	if err := req.ClientTools.Invoke(ctx, call); err != nil {
		return err
	}

	content := &genai.Content{
		Role: string(genai.RoleModel),
		Parts: []*genai.Part{{
			FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args},
		}},
	}
	if err := d.record(ctx, req.SessionID, invocation, demoAuthor, content); err != nil {
		return err
	}
	return send(&native.Event{
		ID:                 uuid.NewString(),
		InvocationID:       invocation,
		Author:             demoAuthor,
		FunctionCalls:      []native.FunctionCall{call},
		LongRunningToolIDs: []string{call.ID},
	})
}

func (d *demoRuntime) setState(ctx context.Context, req runner.RunRequest, invocation, assignment string, send func(*native.Event) error) error {
	key, value, ok := strings.Cut(assignment, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return d.say(ctx, req, invocation, "Usage: /state key=value", send)
	}
	var v any = strings.TrimSpace(value)
	if err := json.Unmarshal([]byte(strings.TrimSpace(value)), &v); err != nil {
		v = strings.TrimSpace(value)
	}

	delta := map[string]any{key: v}
	if _, err := d.store.UpdateState(ctx, req.SessionID, delta); err != nil {
		return err
	}
	if err := send(&native.Event{
		ID:           uuid.NewString(),
		InvocationID: invocation,
		Author:       demoAuthor,
		StateDelta:   delta,
	}); err != nil {
		return err
	}
	return d.say(ctx, req, invocation, "Set "+key+".", send)
}

func (d *demoRuntime) describeLatestResult(ctx context.Context, sessionID string) (string, error) {
	recs, err := d.store.Events(ctx, sessionID)
	if err != nil {
		return "", err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		responses := native.ContentResponses(recs[i].Content)
		if len(responses) == 0 {
			continue
		}
		last := responses[len(responses)-1]
		data, err := json.Marshal(last.Response)
		if err != nil {
			return "", err
		}
		name := last.Name
		if name == "" {
			name = last.ID
		}
		return fmt.Sprintf("Got the result of %s: %s", name, data), nil
	}
	return "Nothing to continue.", nil
}

func (d *demoRuntime) record(ctx context.Context, sessionID, invocation, author string, content *genai.Content) error {
	return d.store.AppendEvent(ctx, sessionID, store.Record{
		ID:           uuid.NewString(),
		InvocationID: invocation,
		Author:       author,
		Content:      content,
		Timestamp:    time.Now(),
	})
}
