package agui

import (
	"encoding/json"
	"strings"

	"github.com/spetersoncode/agbridge/native"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is an AG-UI message as sent in RunAgentInput.
// Content is kept raw because user messages may carry either a string or a
// list of multimodal parts.
type Message struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"toolCalls,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ToolCall is a tool call recorded on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// TextMessage builds a message with plain string content.
func TextMessage(id, role, text string) Message {
	content, _ := json.Marshal(text)
	return Message{ID: id, Role: role, Content: content}
}

// ToolMessage builds a tool-result message.
func ToolMessage(id, toolCallID, content string) Message {
	m := TextMessage(id, RoleTool, content)
	m.ToolCallID = toolCallID
	return m
}

// Text returns the textual content of the message. Multimodal content is
// reduced to its text parts.
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolResult is a client-supplied result for a tool call.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
}

// Response decodes the result content. JSON objects are used as-is; anything
// else is wrapped as {"result": value}.
func (r ToolResult) Response() map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(r.Content), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(r.Content), &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"result": r.Content}
}

// FunctionResponse converts the result into a native function response.
func (r ToolResult) FunctionResponse() native.FunctionResponse {
	return native.FunctionResponse{ID: r.ToolCallID, Name: r.Name, Response: r.Response()}
}

// FunctionResponses converts tool results into native function responses.
func FunctionResponses(results []ToolResult) []native.FunctionResponse {
	out := make([]native.FunctionResponse, 0, len(results))
	for _, r := range results {
		out = append(out, r.FunctionResponse())
	}
	return out
}

// SplitTail separates the end of a conversation into the tool results the
// client just supplied and an optional user message that follows them.
//
// Tool results are the run of tool messages at the end of the conversation,
// or directly before a trailing user message. Names are resolved from the
// assistant tool calls that requested them.
func SplitTail(msgs []Message) ([]ToolResult, *Message) {
	if len(msgs) == 0 {
		return nil, nil
	}
	end := len(msgs) - 1
	var user *Message
	if msgs[end].Role == RoleUser {
		user = &msgs[end]
		end--
	}
	start := end
	for start >= 0 && msgs[start].Role == RoleTool {
		start--
	}
	tail := msgs[start+1 : end+1]
	if len(tail) == 0 {
		return nil, user
	}

	names := toolCallNames(msgs[:start+1])
	results := make([]ToolResult, 0, len(tail))
	for _, m := range tail {
		if m.ToolCallID == "" {
			continue
		}
		results = append(results, ToolResult{
			ToolCallID: m.ToolCallID,
			Name:       names[m.ToolCallID],
			Content:    m.Text(),
		})
	}
	return results, user
}

func toolCallNames(msgs []Message) map[string]string {
	names := make(map[string]string)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			names[tc.ID] = tc.Function.Name
		}
	}
	return names
}
