package runner

import (
	"context"
	"io"
	"sync"

	"google.golang.org/genai"

	"github.com/spetersoncode/agbridge/native"
	"github.com/spetersoncode/agbridge/proxy"
)

// Runtime is the native agent runtime a Runner drives.
//
// The runtime shares the session store with the Runner: it reads the
// session's event log for history, including function responses the Runner
// persisted before the run started, and persists its own confirmed events.
type Runtime interface {
	Run(ctx context.Context, req RunRequest) (Stream, error)
}

// RunRequest is one invocation of the native runtime.
type RunRequest struct {
	AppName   string
	UserID    string
	SessionID string
	RunID     string

	// NewMessage is the trailing user message, or nil when the request only
	// answers tool calls. The runtime persists it itself.
	NewMessage *genai.Content

	// InvocationID resumes a paused invocation. It is set only for
	// topologies that accept it.
	InvocationID string

	// ClientTools proxies the client's tools. Invoking one announces the call
	// to the client; the result arrives on a later run.
	ClientTools *proxy.Toolset
}

// Stream yields native events for one run.
type Stream interface {
	// Next returns the next event, or io.EOF when the run is over.
	Next(ctx context.Context) (*native.Event, error)
	Close() error
}

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(ctx context.Context, req RunRequest) (Stream, error)

// Run calls f.
func (f RuntimeFunc) Run(ctx context.Context, req RunRequest) (Stream, error) {
	return f(ctx, req)
}

// SliceStream replays a fixed list of events.
type SliceStream struct {
	mu     sync.Mutex
	events []*native.Event
	pos    int
	closed bool
}

// NewSliceStream returns a Stream over evs.
func NewSliceStream(evs ...*native.Event) *SliceStream {
	return &SliceStream{events: evs}
}

// Next implements Stream.
func (s *SliceStream) Next(ctx context.Context) (*native.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Consumed returns how many events were read.
func (s *SliceStream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Close implements Stream.
func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ChanStream adapts a channel of events, closed by the producer when the run
// is over. Errors are reported through the error channel, if any.
type ChanStream struct {
	events <-chan *native.Event
	errs   <-chan error
	stop   func()
}

// NewChanStream returns a Stream reading from events. stop, if non-nil, is
// called on Close to release the producer.
func NewChanStream(events <-chan *native.Event, errs <-chan error, stop func()) *ChanStream {
	return &ChanStream{events: events, errs: errs, stop: stop}
}

// Next implements Stream.
func (s *ChanStream) Next(ctx context.Context) (*native.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err, ok := <-s.errs:
		if ok && err != nil {
			return nil, err
		}
		s.errs = nil
		return s.Next(ctx)
	case ev, ok := <-s.events:
		if !ok {
			// the producer may report an error just before closing
			select {
			case err, ok := <-s.errs:
				if ok && err != nil {
					return nil, err
				}
			default:
			}
			return nil, io.EOF
		}
		return ev, nil
	}
}

// Close implements Stream.
func (s *ChanStream) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}
