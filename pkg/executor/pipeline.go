package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/default-user/mathison/pkg/capabilities"
	"github.com/default-user/mathison/pkg/governance"
	"github.com/default-user/mathison/pkg/observability"
	"github.com/default-user/mathison/pkg/receipts"
	"github.com/default-user/mathison/pkg/registry"
)

// Pipeline is the C7 core algorithm: it forces every request through the
// five governed stages, appending one StageReceipt per stage both into the
// in-flight chain and durably into receipts.Store, and returns a sealed
// Response only it can construct.
type Pipeline struct {
	receiptStore receipts.Store
	tokens       capabilities.TokenStore
	handlers     *registry.HandlerRegistry
	proof        *registry.DispatchProof
	governance   governance.Provider
	obs          *observability.Provider // optional; nil-safe
}

// NewPipeline wires the four collaborators C7 depends on. proof must be the
// exact DispatchProof the handlers registry was constructed with — the
// Pipeline is the only caller ever expected to present it to Dispatch.
func NewPipeline(receiptStore receipts.Store, tokens capabilities.TokenStore, handlers *registry.HandlerRegistry, proof *registry.DispatchProof, gov governance.Provider, obs *observability.Provider) *Pipeline {
	return &Pipeline{
		receiptStore: receiptStore,
		tokens:       tokens,
		handlers:     handlers,
		proof:        proof,
		governance:   gov,
		obs:          obs,
	}
}

// track wraps a pipeline stage in an OTel span/counter pair when an
// observability.Provider is configured; a nil provider is a no-op.
func (p *Pipeline) track(ctx context.Context, stage Stage) (context.Context, func(error)) {
	if p.obs == nil {
		return ctx, func(error) {}
	}
	return p.obs.TrackOperation(ctx, "pipeline."+string(stage))
}

// Execute runs the seven-step procedure of spec.md §4.7 verbatim.
func (p *Pipeline) Execute(ctx context.Context, reqCtx *RequestContext) (*Response, error) {
	// Step 1: context validation. No receipts are emitted yet.
	if reqCtx == nil || !reqCtx.Valid() {
		return p.deny(reqCtx, StageInit, ErrCodeInvalidContext, "request context is missing a required field", nil), nil
	}

	meta := governance.RequestMeta{
		TraceID:     reqCtx.TraceID,
		PrincipalID: reqCtx.PrincipalID,
		NamespaceID: reqCtx.NamespaceID,
		Intent:      reqCtx.Intent,
		Labels:      reqCtx.Origin.Labels,
	}

	var chain []receipts.StageReceipt
	var prev *receipts.StageReceipt

	appendReceipt := func(stage receipts.Stage, result receipts.Result, details map[string]any) (receipts.StageReceipt, error) {
		r, err := receipts.NewStageReceipt(stage, reqCtx.TraceID, result, details, prev)
		if err != nil {
			return receipts.StageReceipt{}, err
		}
		chain = append(chain, r)
		prev = &chain[len(chain)-1]

		if p.receiptStore != nil {
			durable := receipts.Receipt{
				Stage:     stage,
				Action:    reqCtx.Intent,
				Timestamp: r.Timestamp,
				Verdict:   verdictFor(result),
			}
			if _, err := p.receiptStore.Append(ctx, reqCtx.TraceID, durable); err != nil {
				return receipts.StageReceipt{}, fmt.Errorf("executor: failed to append durable receipt: %w", err)
			}
		}
		return r, nil
	}

	// The handler lookup of step 3 runs before CIF_INGRESS, so an unknown
	// intent leaves a chain of exactly one receipt: the CDI_ACTION FAIL.
	handlerMeta, ok := p.handlers.Metadata(reqCtx.Intent)
	if !ok {
		if _, rErr := appendReceipt(receipts.StageCDIAction, receipts.ResultFail, map[string]any{"reason": "unknown intent"}); rErr != nil {
			return nil, rErr
		}
		return p.failed(reqCtx, chain, StageCDIAction, ErrCodeUnknownIntent, fmt.Sprintf("no handler registered for intent %q", reqCtx.Intent), governance.DecisionMeta{}), nil
	}

	// Step 2: CIF_INGRESS.
	stageCtx, done := p.track(ctx, StageCIFIngress)
	ingress, err := p.governance.ValidateIngress(stageCtx, meta, reqCtx.Payload)
	done(err)
	if err != nil || !ingress.Valid {
		reason := "ingress validation error"
		if err == nil {
			reason = joinErrors(ingress.Errors)
		}
		if _, rErr := appendReceipt(receipts.StageCIFIngress, receipts.ResultFail, map[string]any{"reason": reason}); rErr != nil {
			return nil, rErr
		}
		return p.failed(reqCtx, chain, StageCIFIngress, ErrCodeCIFIngressFailed, reason, governance.DecisionMeta{}), nil
	}
	if _, rErr := appendReceipt(receipts.StageCIFIngress, receipts.ResultPass, nil); rErr != nil {
		return nil, rErr
	}

	// Step 3: CDI_ACTION.
	stageCtx, done = p.track(ctx, StageCDIAction)
	action, err := p.governance.CheckAction(stageCtx, meta, reqCtx.Intent, governance.RiskClass(handlerMeta.RiskClass), reqCtx.RequestedCapabilities)
	done(err)
	decision := governance.DecisionMeta{
		Allowed:          action.Allowed,
		Reason:           action.Reason,
		RiskClass:        governance.RiskClass(handlerMeta.RiskClass),
		CapabilityTokens: action.CapabilityTokens,
		RedactionRules:   action.RedactionRules,
		DegradationLevel: action.DegradationLevel,
		DecidedAt:        time.Now().UTC().UnixMilli(),
	}
	if err != nil || !action.Allowed {
		reason := action.Reason
		if err != nil {
			reason = "action policy evaluation error"
		}
		if _, rErr := appendReceipt(receipts.StageCDIAction, receipts.ResultFail, map[string]any{"reason": reason}); rErr != nil {
			return nil, rErr
		}
		return p.failed(reqCtx, chain, StageCDIAction, ErrCodeCDIActionDenied, reason, decision), nil
	}
	if _, rErr := appendReceipt(receipts.StageCDIAction, receipts.ResultPass, map[string]any{"capability_tokens": len(action.CapabilityTokens)}); rErr != nil {
		return nil, rErr
	}

	// Step 4: HANDLER. Zero issued tokens still runs the handler — the
	// handler remains responsible for presenting tokens to any adapter
	// that itself requires them (spec §4.7 tie-break).
	handlerInput := map[string]any{}
	for k, v := range ingress.SanitizedPayload {
		handlerInput[k] = v
	}
	handlerInput["_capability_tokens"] = action.CapabilityTokens

	stageCtx, done = p.track(ctx, StageHandler)
	handlerResult, err := p.handlers.Dispatch(stageCtx, p.proof, reqCtx.Intent, handlerInput)
	done(err)
	if err != nil {
		if _, rErr := appendReceipt(receipts.StageHandler, receipts.ResultFail, map[string]any{"reason": "handler error"}); rErr != nil {
			return nil, rErr
		}
		return p.failed(reqCtx, chain, StageHandler, ErrCodeHandlerError, "handler invocation failed", decision), nil
	}
	if _, rErr := appendReceipt(receipts.StageHandler, receipts.ResultPass, map[string]any{"intent": reqCtx.Intent}); rErr != nil {
		return nil, rErr
	}

	// Step 5: CDI_OUTPUT.
	stageCtx, done = p.track(ctx, StageCDIOutput)
	output, err := p.governance.CheckOutput(stageCtx, meta, handlerResult, decision)
	done(err)
	if err != nil || !output.Valid {
		reason := "output validation error"
		if err == nil {
			reason = joinErrors(output.Errors)
		}
		if _, rErr := appendReceipt(receipts.StageCDIOutput, receipts.ResultFail, map[string]any{"reason": reason}); rErr != nil {
			return nil, rErr
		}
		return p.failed(reqCtx, chain, StageCDIOutput, ErrCodeCDIOutputDenied, reason, decision), nil
	}
	if _, rErr := appendReceipt(receipts.StageCDIOutput, receipts.ResultPass, nil); rErr != nil {
		return nil, rErr
	}

	// Step 6: CIF_EGRESS.
	stageCtx, done = p.track(ctx, StageCIFEgress)
	egress, err := p.governance.ValidateEgress(stageCtx, meta, output.RedactedResponse)
	done(err)
	if err != nil || !egress.Valid {
		reason := "egress validation error"
		if err == nil {
			reason = joinErrors(egress.Errors)
		}
		if _, rErr := appendReceipt(receipts.StageCIFEgress, receipts.ResultFail, map[string]any{"reason": reason}); rErr != nil {
			return nil, rErr
		}
		return p.failed(reqCtx, chain, StageCIFEgress, ErrCodeCIFEgressFailed, reason, decision), nil
	}
	if _, rErr := appendReceipt(receipts.StageCIFEgress, receipts.ResultPass, nil); rErr != nil {
		return nil, rErr
	}

	// Step 7: sealed success response.
	return &Response{
		Success:      true,
		Data:         egress.FinalResponse,
		DecisionMeta: decision,
		TraceID:      reqCtx.TraceID,
		ReceiptChain: receipts.BuildChain(reqCtx.TraceID, chain),
	}, nil
}

func (p *Pipeline) failed(reqCtx *RequestContext, chain []receipts.StageReceipt, stage Stage, code ErrorCode, message string, decision governance.DecisionMeta) *Response {
	return &Response{
		Success:      false,
		Error:        &ResponseError{Code: code, Message: message, Stage: stage},
		DecisionMeta: decision,
		TraceID:      reqCtx.TraceID,
		ReceiptChain: receipts.BuildChain(reqCtx.TraceID, chain),
	}
}

// deny builds a step-1 response for a RequestContext that failed
// validation, for which no trace_id can be trusted to key a receipt chain.
func (p *Pipeline) deny(reqCtx *RequestContext, stage Stage, code ErrorCode, message string, decision *governance.DecisionMeta) *Response {
	traceID := ""
	if reqCtx != nil {
		traceID = reqCtx.TraceID
	}
	dm := governance.DecisionMeta{}
	if decision != nil {
		dm = *decision
	}
	return &Response{
		Success:      false,
		Error:        &ResponseError{Code: code, Message: message, Stage: stage},
		DecisionMeta: dm,
		TraceID:      traceID,
		ReceiptChain: receipts.BuildChain(traceID, nil),
	}
}

func verdictFor(result receipts.Result) receipts.Verdict {
	if result == receipts.ResultPass {
		return receipts.VerdictAllow
	}
	return receipts.VerdictDeny
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

// NewProof is a convenience re-export so callers assembling a Pipeline do
// not need to import pkg/registry solely to mint a DispatchProof.
func NewProof() *registry.DispatchProof {
	return registry.NewDispatchProof()
}
