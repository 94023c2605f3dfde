package reference

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// ActionPolicy evaluates a CEL boolean expression over the CDI_ACTION
// decision variables, grounded on the teacher's celdp.CELDPEvaluator. A
// single expression is compiled once at construction and reused across
// requests — CEL programs are safe for concurrent Eval calls.
type ActionPolicy struct {
	env string // source expression, kept for diagnostics
	prg cel.Program
}

// DefaultActionExpression permits everything except explicit
// high_risk-without-capabilities requests, giving the reference provider
// a sane out-of-the-box policy for tests and local development.
const DefaultActionExpression = `risk_class != "high_risk" || size(requested_capabilities) > 0`

// NewActionPolicy compiles expr over the variables {intent, risk_class,
// requested_capabilities, principal_id, namespace_id}.
func NewActionPolicy(expr string) (*ActionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("intent", cel.StringType),
		cel.Variable("risk_class", cel.StringType),
		cel.Variable("requested_capabilities", cel.ListType(cel.StringType)),
		cel.Variable("principal_id", cel.StringType),
		cel.Variable("namespace_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("reference: failed to build CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("reference: failed to compile action policy %q: %w", expr, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("reference: failed to build CEL program for %q: %w", expr, err)
	}

	return &ActionPolicy{env: expr, prg: prg}, nil
}

// Evaluate runs the compiled expression. A non-boolean result or a
// runtime error is treated as a denial carrying the CEL issue text as
// reason, per spec.md's "opaque to core, fails closed".
func (p *ActionPolicy) Evaluate(intent, riskClass string, requestedCapabilities []string, principalID, namespaceID string) (allowed bool, reason string) {
	vars := map[string]any{
		"intent":                 intent,
		"risk_class":             riskClass,
		"requested_capabilities": requestedCapabilities,
		"principal_id":           principalID,
		"namespace_id":           namespaceID,
	}

	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, fmt.Sprintf("action policy evaluation error: %s", err.Error())
	}

	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Sprintf("action policy %q did not evaluate to a boolean", p.env)
	}
	if !ok {
		return false, fmt.Sprintf("action policy %q denied the request", p.env)
	}
	return true, ""
}
