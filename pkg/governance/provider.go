package governance

import "context"

// RiskClass is the CDI-assigned risk tier for an intent (spec §3).
type RiskClass string

const (
	RiskReadOnly   RiskClass = "read_only"
	RiskLow        RiskClass = "low_risk"
	RiskMedium     RiskClass = "medium_risk"
	RiskHigh       RiskClass = "high_risk"
)

// DegradationLevel reflects how much of the governance policy capsule was
// available when a decision was made (spec §4.7 "Degradation ladder").
type DegradationLevel string

const (
	DegradationNone    DegradationLevel = "none"
	DegradationPartial DegradationLevel = "partial"
	DegradationFull    DegradationLevel = "full"
)

// CapsuleState is the freshness of the policy capsule CapsuleStatus
// reports on.
type CapsuleState string

const (
	CapsuleValid   CapsuleState = "valid"
	CapsuleStale   CapsuleState = "stale"
	CapsuleMissing CapsuleState = "missing"
)

// IngressResult is CIF_INGRESS's verdict.
type IngressResult struct {
	Valid            bool
	SanitizedPayload map[string]any
	TaintLabels      []string
	Errors           []string
}

// IssuedCapability is one capability token CDI authorized for this
// request, described opaquely to the core (the core forwards these records
// unchanged to the handler under the "_capability_tokens" input key).
type IssuedCapability struct {
	TokenID     string
	Capability  string
	ExpiresInMS int64
}

// ActionResult is CDI_ACTION's verdict.
type ActionResult struct {
	Allowed           bool
	Reason            string
	CapabilityTokens  []IssuedCapability
	RedactionRules    []string
	DegradationLevel  DegradationLevel
}

// OutputResult is CDI_OUTPUT's verdict.
type OutputResult struct {
	Valid            bool
	RedactedResponse map[string]any
	Errors           []string
}

// EgressResult is CIF_EGRESS's verdict.
type EgressResult struct {
	Valid         bool
	FinalResponse map[string]any
	Errors        []string
}

// CapsuleStatusResult is the degradation ladder's current policy-capsule
// reading.
type CapsuleStatusResult struct {
	State            CapsuleState
	DegradationLevel DegradationLevel
}

// DecisionMeta is the per-request authorization record the executor
// assembles from CDI_ACTION's output and returns with every response
// (spec §3).
type DecisionMeta struct {
	Allowed          bool
	Reason           string
	RiskClass        RiskClass
	CapabilityTokens []IssuedCapability
	RedactionRules   []string
	DegradationLevel DegradationLevel
	DecidedAt        int64 // unix millis
}

// Provider is the governance policy layer's contract with the core (spec
// C8). The core depends only on this interface; CIF/CDI policy content is
// an external collaborator. Every method is called at most once per
// pipeline stage and the core treats any returned error as a fail-closed
// stage FAIL.
type Provider interface {
	ValidateIngress(ctx context.Context, requestCtx RequestMeta, payload map[string]any) (IngressResult, error)
	CheckAction(ctx context.Context, requestCtx RequestMeta, intent string, riskClass RiskClass, requestedCapabilities []string) (ActionResult, error)
	CheckOutput(ctx context.Context, requestCtx RequestMeta, handlerResult map[string]any, decision DecisionMeta) (OutputResult, error)
	ValidateEgress(ctx context.Context, requestCtx RequestMeta, response map[string]any) (EgressResult, error)
	CapsuleStatus(ctx context.Context) (CapsuleStatusResult, error)
}

// RequestMeta is the subset of RequestContext governance providers need —
// kept separate from pkg/executor.RequestContext to avoid an import cycle
// (executor depends on governance, not the reverse).
type RequestMeta struct {
	TraceID     string
	PrincipalID string
	NamespaceID string
	Intent      string
	Labels      []string
}
