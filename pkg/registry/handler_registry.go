package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrSealed is returned by Register once the registry has been sealed.
var ErrSealed = errors.New("registry: sealed, no further handlers may be registered")

// ErrAlreadyRegistered is returned by Register when intent is already
// bound to a handler.
var ErrAlreadyRegistered = errors.New("registry: intent already registered")

// ErrNotFound is returned by Dispatch when intent has no registered
// handler.
var ErrNotFound = errors.New("registry: intent not found")

// ErrInvalidProof is returned by Dispatch when the caller did not present
// this registry's dispatch proof.
var ErrInvalidProof = errors.New("registry: invalid dispatch proof")

// HandlerFunc is a registered handler's invocation body (spec C5 HANDLER
// stage).
type HandlerFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// HandlerMetadata is everything about a registered handler that may be
// exposed outside the registry — never the handler func itself, per
// spec §4.5/§9.
type HandlerMetadata struct {
	Intent               string
	RiskClass            string
	RequiredCapabilities []string
	Description          string
}

// RegisteredHandler bundles a handler's metadata with its invocation body
// for registration.
type RegisteredHandler struct {
	Metadata HandlerMetadata
	Fn       HandlerFunc
}

// DispatchProof is an unforgeable, process-local capability gating
// HandlerRegistry.Dispatch. The component constructing the Pipeline mints
// one with NewDispatchProof and hands the same pointer to both the registry
// and the Pipeline — generalizing the teacher's module-private-sentinel
// idiom (an exported const or symbol) into pointer identity per spec §9's
// explicit guidance: Dispatch compares pointers, so any other
// *DispatchProof (a second NewDispatchProof call or a literal) is refused,
// while a sentinel value can always be copied.
type DispatchProof struct{ _ byte }

// NewDispatchProof mints a fresh proof. Intended to be called exactly once,
// by the component constructing the Pipeline, and threaded through to the
// registry it builds.
func NewDispatchProof() *DispatchProof {
	return &DispatchProof{}
}

// HandlerRegistry is the sealed, intent-keyed handler table (spec C5).
type HandlerRegistry struct {
	mu       sync.RWMutex
	sealed   atomic.Bool
	handlers map[string]RegisteredHandler
	proof    *DispatchProof
}

// NewHandlerRegistry constructs a registry that only accepts Dispatch
// calls presenting proof.
func NewHandlerRegistry(proof *DispatchProof) *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]RegisteredHandler),
		proof:    proof,
	}
}

// Register binds a handler to its intent. Fails once sealed or if intent
// is already bound (spec §4.5).
func (r *HandlerRegistry) Register(h RegisteredHandler) error {
	if r.sealed.Load() {
		return ErrSealed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrSealed
	}
	if _, exists := r.handlers[h.Metadata.Intent]; exists {
		return ErrAlreadyRegistered
	}
	r.handlers[h.Metadata.Intent] = h
	return nil
}

// Seal permanently closes the registry to further registration. Idempotent.
func (r *HandlerRegistry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *HandlerRegistry) Sealed() bool {
	return r.sealed.Load()
}

// Metadata returns a registered handler's public metadata, never its
// invocation body.
func (r *HandlerRegistry) Metadata(intent string) (HandlerMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[intent]
	if !ok {
		return HandlerMetadata{}, false
	}
	return h.Metadata, true
}

// Dispatch invokes the handler bound to intent. Only callers presenting
// this registry's exact DispatchProof pointer — in practice, only
// pkg/executor's Pipeline — may reach a handler body at all.
func (r *HandlerRegistry) Dispatch(ctx context.Context, proof *DispatchProof, intent string, input map[string]any) (map[string]any, error) {
	if proof != r.proof {
		return nil, ErrInvalidProof
	}

	r.mu.RLock()
	h, ok := r.handlers[intent]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return h.Fn(ctx, input)
}
