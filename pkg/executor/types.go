// Package executor implements the five-stage governed pipeline (spec C7):
// the core algorithm that forces every request through CIF_INGRESS,
// CDI_ACTION, HANDLER, CDI_OUTPUT, and CIF_EGRESS, appending a hash-chained
// receipt at every stage.
package executor

import (
	"time"

	"github.com/default-user/mathison/pkg/governance"
	"github.com/default-user/mathison/pkg/receipts"
)

// Origin tags where a request entered the system.
type Origin string

const (
	OriginHTTP   Origin = "http"
	OriginRPC    Origin = "rpc"
	OriginCLI    Origin = "cli"
	OriginWorker Origin = "worker"
)

// RequestOrigin carries the origin tag plus its taint metadata (spec §3).
type RequestOrigin struct {
	Kind     Origin
	Labels   []string
	Purpose  string
	ClientID string
}

// RequestContext is built once per request and never mutated afterward.
type RequestContext struct {
	TraceID               string
	PrincipalID           string
	NamespaceID           string
	Intent                string
	RequestedCapabilities []string
	Origin                RequestOrigin
	CreatedAt             time.Time
	Metadata              map[string]any
	Payload               map[string]any
}

// Valid reports whether every field invariant-required non-empty is
// non-empty (spec §4.7 step 1).
func (r RequestContext) Valid() bool {
	return r.TraceID != "" && r.PrincipalID != "" && r.NamespaceID != "" && r.Intent != "" && r.Origin.Kind != ""
}

// Stage mirrors receipts.Stage plus the bookkeeping-only states INIT,
// COMPLETE, FAILED that never themselves get a StageReceipt.
type Stage string

const (
	StageInit       Stage = "INIT"
	StageCIFIngress Stage = Stage(receipts.StageCIFIngress)
	StageCDIAction  Stage = Stage(receipts.StageCDIAction)
	StageHandler    Stage = Stage(receipts.StageHandler)
	StageCDIOutput  Stage = Stage(receipts.StageCDIOutput)
	StageCIFEgress  Stage = Stage(receipts.StageCIFEgress)
	StageComplete   Stage = "COMPLETE"
	StageFailed     Stage = "FAILED"
)

// ErrorCode is the closed enum of response error codes (spec §6).
type ErrorCode string

const (
	ErrCodeInvalidContext    ErrorCode = "INVALID_CONTEXT"
	ErrCodeUnknownIntent     ErrorCode = "UNKNOWN_INTENT"
	ErrCodeCIFIngressFailed  ErrorCode = "CIF_INGRESS_FAILED"
	ErrCodeCDIActionDenied   ErrorCode = "CDI_ACTION_DENIED"
	ErrCodeHandlerError      ErrorCode = "HANDLER_ERROR"
	ErrCodeCDIOutputDenied   ErrorCode = "CDI_OUTPUT_DENIED"
	ErrCodeCIFEgressFailed   ErrorCode = "CIF_EGRESS_FAILED"
	ErrCodePipelineError     ErrorCode = "PIPELINE_ERROR"
	ErrCodeStageTimeout      ErrorCode = "STAGE_TIMEOUT"
	ErrCodeStopCommand       ErrorCode = "STOP_COMMAND"
)

// ResponseError is the {code, message, stage} shape attached to a denied
// response.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Stage   Stage     `json:"stage"`
}

// Response is the sealed, executor-constructed pipeline result (spec §4.7
// step 7). Its fields are all exported for JSON marshaling by entrypoint
// adapters. Within this module only this package builds one (in Execute,
// failed and deny); the exported type does not stop another package from
// constructing a Response literal.
type Response struct {
	Success      bool                   `json:"success"`
	Data         map[string]any         `json:"data,omitempty"`
	Error        *ResponseError         `json:"error,omitempty"`
	DecisionMeta governance.DecisionMeta `json:"decision_meta"`
	TraceID      string                 `json:"trace_id"`
	ReceiptChain receipts.ReceiptChain  `json:"receipt_chain"`
}

// StopResult is the outcome of Pipeline.Stop.
type StopResult struct {
	RevokedTokens int   `json:"revoked_tokens"`
	State         Stage `json:"state"`
}
