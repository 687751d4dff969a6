package agui

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"google.golang.org/genai"

	"github.com/spetersoncode/agbridge/native"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
// This mirrors the AG-UI protocol specification and is transport-agnostic.
type RunAgentInput struct {
	ThreadID       string    `json:"threadId"`
	RunID          string    `json:"runId"`
	State          any       `json:"state,omitempty"`
	Messages       []Message `json:"messages"`
	Tools          []Tool    `json:"tools,omitempty"`
	Context        []any     `json:"context,omitempty"`
	ForwardedProps any       `json:"forwardedProps,omitempty"`
}

// PreparedInput contains validated input ready for a run.
type PreparedInput struct {
	ThreadID  string
	RunID     string
	Messages  []Message
	Tools     []Tool
	ToolNames []string
	State     map[string]any

	// ToolResults are the client-supplied results at the end of the conversation.
	ToolResults []ToolResult

	// UserMessage is the trailing user message, if any.
	UserMessage *Message
}

var (
	// ErrNoMessages is returned when the input contains no messages.
	ErrNoMessages = errors.New("agui: no messages provided")

	// ErrNoInput is returned when the conversation ends with neither a user
	// message nor tool results.
	ErrNoInput = errors.New("agui: no user message or tool result to run")

	// ErrInvalidState is returned when state is not a JSON object.
	ErrInvalidState = errors.New("agui: state must be an object")
)

// Prepare validates the input. Missing thread and run ids are generated.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	if len(r.Messages) == 0 {
		return nil, ErrNoMessages
	}

	state, err := decodeState(r.State)
	if err != nil {
		return nil, err
	}

	results, user := SplitTail(r.Messages)
	if len(results) == 0 && user == nil {
		return nil, ErrNoInput
	}

	p := &PreparedInput{
		ThreadID:    r.ThreadID,
		RunID:       r.RunID,
		Messages:    r.Messages,
		Tools:       r.Tools,
		ToolNames:   ToolNames(r.Tools),
		State:       state,
		ToolResults: results,
		UserMessage: user,
	}
	if p.ThreadID == "" {
		p.ThreadID = events.GenerateThreadID()
	}
	if p.RunID == "" {
		p.RunID = events.GenerateRunID()
	}
	return p, nil
}

// NewMessage returns the content to hand the runtime as the new message: the
// trailing user message, or nil when the request only carries tool results.
func (p *PreparedInput) NewMessage() *genai.Content {
	if p.UserMessage == nil {
		return nil
	}
	return native.UserText(p.UserMessage.Text())
}

// ToolResultIDs returns the tool-call ids the request supplies results for.
func (p *PreparedInput) ToolResultIDs() []string {
	ids := make([]string, 0, len(p.ToolResults))
	for _, r := range p.ToolResults {
		ids = append(ids, r.ToolCallID)
	}
	return ids
}

// DecodeState decodes the prepared state into a typed struct.
// Returns the zero value of T if there is no state.
func DecodeState[T any](input *PreparedInput) (T, error) {
	var result T
	if len(input.State) == 0 {
		return result, nil
	}
	data, err := json.Marshal(input.State)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}

func decodeState(raw any) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	// Re-marshal to accept typed structs from in-process callers
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return m, nil
}
