// Package argstream rebuilds incrementally streamed tool-call arguments into
// JSON text deltas.
//
// A runtime that streams function-call arguments sends (json-path, string)
// fragments instead of a finished object. [Builder] turns each fragment into
// the smallest piece of JSON text that can be appended to what was already
// sent, so a client concatenating every delta ends up with a valid object:
//
//	b := argstream.New()
//	d1, _ := b.Append("$.document", "Hello ") // {"document":"Hello
//	d2, _ := b.Append("$.document", "World")  // World
//	d3 := b.Close()                           // "}
//	// d1+d2+d3 == {"document":"Hello World"}
//
// Only top-level string-valued keys can be streamed. Keys must arrive in
// blocks: once the stream moves to a new key it cannot return to an earlier one.
package argstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPath is returned for a json path that is not a single top-level key.
	ErrMalformedPath = errors.New("argstream: malformed json path")

	// ErrNonStringValue is returned when a fragment value is not a string.
	ErrNonStringValue = errors.New("argstream: non-string fragment value")

	// ErrKeyClosed is returned when a fragment targets a key the stream has already moved past.
	ErrKeyClosed = errors.New("argstream: key already closed")

	// ErrClosed is returned when appending to a builder after Close.
	ErrClosed = errors.New("argstream: stream closed")
)

// Builder accumulates fragments for a single tool call.
// It is not safe for concurrent use.
type Builder struct {
	started map[string]bool
	current string
	closed  bool
	text    strings.Builder
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{started: make(map[string]bool)}
}

// Append records one fragment and returns the delta to emit.
// A rejected fragment leaves the builder unchanged.
func (b *Builder) Append(path string, value any) (string, error) {
	if b.closed {
		return "", ErrClosed
	}
	key, err := ParsePath(path)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %T at %s", ErrNonStringValue, value, path)
	}

	var delta string
	switch {
	case key == b.current:
		delta = Escape(s)
	case b.started[key]:
		return "", fmt.Errorf("%w: %s", ErrKeyClosed, key)
	case b.current == "":
		delta = `{"` + Escape(key) + `":"` + Escape(s)
	default:
		delta = `","` + Escape(key) + `":"` + Escape(s)
	}

	b.started[key] = true
	b.current = key
	b.text.WriteString(delta)
	return delta, nil
}

// Close returns the delta that terminates the object. A stream that never
// opened a key closes as an empty object.
func (b *Builder) Close() string {
	if b.closed {
		return ""
	}
	b.closed = true
	delta := `"}`
	if b.current == "" {
		delta = "{}"
	}
	b.text.WriteString(delta)
	return delta
}

// Open reports whether at least one key has been started.
func (b *Builder) Open() bool {
	return b.current != ""
}

// Closed reports whether Close has been called.
func (b *Builder) Closed() bool {
	return b.closed
}

// Text returns every delta emitted so far, concatenated.
func (b *Builder) Text() string {
	return b.text.String()
}

// Value decodes the finished object. It fails until Close has been called.
func (b *Builder) Value() (map[string]any, error) {
	if !b.closed {
		return nil, errors.New("argstream: stream not closed")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(b.text.String()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset discards all state so the builder can serve another tool call.
func (b *Builder) Reset() {
	clear(b.started)
	b.current = ""
	b.closed = false
	b.text.Reset()
}

// ParsePath extracts the key from a top-level json path.
// Accepted forms are $.key, $['key'] and $["key"].
func ParsePath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "$."):
		key := path[2:]
		if key == "" || strings.ContainsAny(key, ".[]") {
			return "", fmt.Errorf("%w: %q", ErrMalformedPath, path)
		}
		return key, nil
	case strings.HasPrefix(path, "$['") && strings.HasSuffix(path, "']"),
		strings.HasPrefix(path, `$["`) && strings.HasSuffix(path, `"]`):
		if len(path) <= 5 {
			return "", fmt.Errorf("%w: %q", ErrMalformedPath, path)
		}
		return path[3 : len(path)-2], nil
	default:
		return "", fmt.Errorf("%w: %q", ErrMalformedPath, path)
	}
}

// Escape returns s encoded as the inside of a JSON string literal.
func Escape(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	out := buf.Bytes()
	// Encode writes "<escaped>"\n
	return string(out[1 : len(out)-2])
}
