package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/agbridge/native"
)

// translateText handles the text fragments of an event.
//
// Partial fragments from one author stream into a single open message.
// A confirmed event ends the open message; when that message was streamed by
// the same author the confirmed text is the aggregate and is not repeated.
func (t *Translator) translateText(ev *native.Event) []events.Event {
	texts := ev.Texts()

	if ev.IsPartial() {
		if len(texts) == 0 {
			return nil
		}
		var out []events.Event
		if t.messageID != "" && t.messageAuthor != ev.Author {
			out = append(out, t.closeText()...)
		}
		if t.messageID == "" {
			out = append(out, t.openText(ev.Author))
		}
		for _, text := range texts {
			out = append(out, events.NewTextMessageContentEvent(t.messageID, text))
		}
		return out
	}

	if t.messageID != "" {
		sameAuthor := t.messageAuthor == ev.Author
		out := t.closeText()
		if sameAuthor {
			return out
		}
		return append(out, t.completeText(ev.Author, texts)...)
	}
	return t.completeText(ev.Author, texts)
}

func (t *Translator) completeText(author string, texts []string) []events.Event {
	if len(texts) == 0 {
		return nil
	}
	out := []events.Event{t.openText(author)}
	for _, text := range texts {
		out = append(out, events.NewTextMessageContentEvent(t.messageID, text))
	}
	return append(out, t.closeText()...)
}

func (t *Translator) openText(author string) events.Event {
	t.messageID = t.nextID("msg")
	t.messageAuthor = author
	return events.NewTextMessageStartEvent(t.messageID, events.WithRole(RoleAssistant))
}

func (t *Translator) closeText() []events.Event {
	if t.messageID == "" {
		return nil
	}
	end := events.NewTextMessageEndEvent(t.messageID)
	t.messageID = ""
	t.messageAuthor = ""
	return []events.Event{end}
}
