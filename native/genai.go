package native

import (
	"google.golang.org/genai"
)

// FromContent builds an Event from a genai content block. Thought parts are
// skipped. A nil content yields an event with no text and no calls.
func FromContent(author string, c *genai.Content, partial bool) *Event {
	ev := &Event{Author: author}
	if partial {
		ev.Partial = Bool(true)
	}
	if c == nil {
		return ev
	}
	for _, p := range c.Parts {
		if p == nil {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			ev.FunctionCalls = append(ev.FunctionCalls, FunctionCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			})
		case p.FunctionResponse != nil:
			ev.FunctionResponses = append(ev.FunctionResponses, FunctionResponse{
				ID:       p.FunctionResponse.ID,
				Name:     p.FunctionResponse.Name,
				Response: p.FunctionResponse.Response,
			})
		case p.Text != "" && !p.Thought:
			ev.Text = append(ev.Text, p.Text)
		}
	}
	return ev
}

// ResponsesContent packs function responses into a single user-role content
// with one part per response.
func ResponsesContent(responses []FunctionResponse) *genai.Content {
	parts := make([]*genai.Part, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       r.ID,
				Name:     r.Name,
				Response: r.Response,
			},
		})
	}
	return &genai.Content{Role: string(genai.RoleUser), Parts: parts}
}

// UserText wraps text as a user-role content.
func UserText(text string) *genai.Content {
	return &genai.Content{
		Role:  string(genai.RoleUser),
		Parts: []*genai.Part{{Text: text}},
	}
}

// ContentText concatenates the non-thought text parts of c.
func ContentText(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var out string
	for _, p := range c.Parts {
		if p != nil && !p.Thought {
			out += p.Text
		}
	}
	return out
}

// ContentResponses extracts the function responses carried by c.
func ContentResponses(c *genai.Content) []FunctionResponse {
	return FromContent("", c, false).FunctionResponses
}
