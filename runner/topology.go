package runner

import (
	"fmt"
	"strings"
)

// Kind is the shape of the root agent.
type Kind int

const (
	// KindLLM is a single model-driven agent. Sub-agents it transfers to do
	// not make it composite.
	KindLLM Kind = iota
	// KindSequential runs sub-agents in order.
	KindSequential
	// KindLoop runs sub-agents in order, repeatedly.
	KindLoop
	// KindParallel runs sub-agents concurrently.
	KindParallel
)

func (k Kind) String() string {
	switch k {
	case KindLLM:
		return "llm"
	case KindSequential:
		return "sequential"
	case KindLoop:
		return "loop"
	case KindParallel:
		return "parallel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a kind name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "llm":
		return KindLLM, nil
	case "sequential":
		return KindSequential, nil
	case "loop":
		return KindLoop, nil
	case "parallel":
		return KindParallel, nil
	}
	return KindLLM, fmt.Errorf("runner: unknown agent kind %q", s)
}

// Topology describes the configured agent graph.
type Topology struct {
	Kind      Kind
	Resumable bool
	SubAgents []string
}

// NeedsInvocationID reports whether runs must present the stored resumption
// token. Only a resumable sequential or loop root tracks which sub-agent was
// active; other roots reject the token.
func (t Topology) NeedsInvocationID() bool {
	if !t.Resumable {
		return false
	}
	return t.Kind == KindSequential || t.Kind == KindLoop
}
