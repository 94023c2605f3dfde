package reference

import (
	"context"
	"sync"
	"time"

	"github.com/default-user/mathison/pkg/governance"
	"github.com/google/uuid"
)

// Provider is the reference governance.Provider realization: JSON Schema
// for ingress/egress shape, a CEL expression for action authorization, and
// a static degradation-ladder lookup for capsule status.
type Provider struct {
	schemas      *SchemaSet
	action       *ActionPolicy
	mu           sync.Mutex
	capsuleState governance.CapsuleState
}

// New constructs a reference Provider whose capsule state starts as valid;
// it can be changed at runtime via SetCapsuleState to exercise the
// degradation ladder in tests.
func New(schemas *SchemaSet, action *ActionPolicy) *Provider {
	return &Provider{
		schemas:      schemas,
		action:       action,
		capsuleState: governance.CapsuleValid,
	}
}

// SetCapsuleState updates the capsule freshness reading CapsuleStatus and
// the degradation ladder consult in CheckAction use.
func (p *Provider) SetCapsuleState(state governance.CapsuleState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capsuleState = state
}

func (p *Provider) currentCapsuleState() governance.CapsuleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capsuleState
}

func (p *Provider) ValidateIngress(ctx context.Context, requestCtx governance.RequestMeta, payload map[string]any) (governance.IngressResult, error) {
	if errs := p.schemas.validatePayload(requestCtx.Intent, payload); len(errs) > 0 {
		return governance.IngressResult{Valid: false, Errors: errs}, nil
	}
	return governance.IngressResult{Valid: true, SanitizedPayload: payload, TaintLabels: requestCtx.Labels}, nil
}

func (p *Provider) CheckAction(ctx context.Context, requestCtx governance.RequestMeta, intent string, riskClass governance.RiskClass, requestedCapabilities []string) (governance.ActionResult, error) {
	state := p.currentCapsuleState()
	degradation := degradationFor(state)

	if !ladderAllows(state, riskClass) {
		return governance.ActionResult{
			Allowed:          false,
			Reason:           "degradation ladder denies risk class under current capsule state",
			DegradationLevel: degradation,
		}, nil
	}

	allowed, reason := p.action.Evaluate(intent, string(riskClass), requestedCapabilities, requestCtx.PrincipalID, requestCtx.NamespaceID)
	if !allowed {
		return governance.ActionResult{Allowed: false, Reason: reason, DegradationLevel: degradation}, nil
	}

	tokens := make([]governance.IssuedCapability, 0, len(requestedCapabilities))
	for _, cap := range requestedCapabilities {
		tokens = append(tokens, governance.IssuedCapability{
			TokenID:     uuid.New().String(),
			Capability:  cap,
			ExpiresInMS: 5 * time.Minute.Milliseconds(),
		})
	}

	return governance.ActionResult{
		Allowed:          true,
		CapabilityTokens: tokens,
		DegradationLevel: degradation,
	}, nil
}

func (p *Provider) CheckOutput(ctx context.Context, requestCtx governance.RequestMeta, handlerResult map[string]any, decision governance.DecisionMeta) (governance.OutputResult, error) {
	if errs := p.schemas.validateResponse(requestCtx.Intent, handlerResult); len(errs) > 0 {
		return governance.OutputResult{Valid: false, Errors: errs}, nil
	}
	return governance.OutputResult{Valid: true, RedactedResponse: handlerResult}, nil
}

func (p *Provider) ValidateEgress(ctx context.Context, requestCtx governance.RequestMeta, response map[string]any) (governance.EgressResult, error) {
	if errs := p.schemas.validateResponse(requestCtx.Intent, response); len(errs) > 0 {
		return governance.EgressResult{Valid: false, Errors: errs}, nil
	}
	return governance.EgressResult{Valid: true, FinalResponse: response}, nil
}

func (p *Provider) CapsuleStatus(ctx context.Context) (governance.CapsuleStatusResult, error) {
	state := p.currentCapsuleState()
	return governance.CapsuleStatusResult{State: state, DegradationLevel: degradationFor(state)}, nil
}

var _ governance.Provider = (*Provider)(nil)
