package dedup

// Reason explains why a tool call was suppressed.
type Reason int

const (
	// Allowed means no check matched and the call may be emitted.
	Allowed Reason = iota
	// EmittedByClient means the client proxy already announced this id.
	EmittedByClient
	// ClientToolName means the tool is client-resolved and resumable mode is on.
	ClientToolName
	// AlreadyEmitted means this translator already announced this id.
	AlreadyEmitted
	// ClaimedElsewhere means another emitter won the claim on this id.
	ClaimedElsewhere
)

func (r Reason) String() string {
	switch r {
	case Allowed:
		return "allowed"
	case EmittedByClient:
		return "emitted_by_client"
	case ClientToolName:
		return "client_tool_name"
	case AlreadyEmitted:
		return "already_emitted"
	case ClaimedElsewhere:
		return "claimed_elsewhere"
	default:
		return "unknown"
	}
}

// Registry combines the three suppression checks.
type Registry struct {
	emitted     *Set
	external    *Set
	clientNames *Set
	claims      *Set
	resumable   bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExternal shares the set a client proxy writes emitted ids into.
func WithExternal(s *Set) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.external = s
		}
	}
}

// WithClientToolNames sets the names of tools that are always client-resolved.
func WithClientToolNames(s *Set) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.clientNames = s
		}
	}
}

// WithEmitted supplies the set the registry records its own emissions in.
// The client proxy reads it to avoid re-announcing ids the translator emitted.
func WithEmitted(s *Set) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.emitted = s
		}
	}
}

// WithClaims shares the set every emitter of the run claims an id in before
// announcing it. The checks and the claim are separate steps; the claim is
// what keeps two concurrent emitters from both announcing one id.
func WithClaims(s *Set) RegistryOption {
	return func(r *Registry) { r.claims = s }
}

// WithResumable enables name-based suppression.
func WithResumable(on bool) RegistryOption {
	return func(r *Registry) {
		r.resumable = on
	}
}

// NewRegistry creates a Registry. Sets not supplied through options start empty.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		emitted:     NewSet(),
		external:    NewSet(),
		clientNames: NewSet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check runs every suppression check against a call and returns the first
// match, or Allowed.
func (r *Registry) Check(id, name string) Reason {
	if id != "" && r.external.Has(id) {
		return EmittedByClient
	}
	if r.resumable && name != "" && r.clientNames.Has(name) {
		return ClientToolName
	}
	if id != "" && r.emitted.Has(id) {
		return AlreadyEmitted
	}
	return Allowed
}

// Claim reserves id for this emitter. It fails when another emitter sharing
// the claim set took it first. Without a claim set every claim succeeds.
func (r *Registry) Claim(id string) bool {
	return r.claims.Claim(id)
}

// MarkEmitted records ids this translator announced.
func (r *Registry) MarkEmitted(ids ...string) {
	r.emitted.Add(ids...)
}

// Emitted returns the set of ids this translator announced.
func (r *Registry) Emitted() *Set {
	return r.emitted
}

// External returns the client proxy's set.
func (r *Registry) External() *Set {
	return r.external
}

// Resumable reports whether name-based suppression is active.
func (r *Registry) Resumable() bool {
	return r.resumable
}

// SetResumable toggles name-based suppression.
func (r *Registry) SetResumable(on bool) {
	r.resumable = on
}

// Reset forgets this translator's emissions. The external and name sets
// belong to other components and are left alone.
func (r *Registry) Reset() {
	r.emitted.Clear()
}
