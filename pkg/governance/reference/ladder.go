package reference

import "github.com/default-user/mathison/pkg/governance"

// ladderKey is the (capsule state, risk class) pair the degradation ladder
// is keyed on (spec.md §4.7 "Degradation ladder").
type ladderKey struct {
	state     governance.CapsuleState
	riskClass governance.RiskClass
}

// defaultLadder is a Go map literal holding the static degradation-ladder
// table. Its content is policy and deliberately out of scope per spec.md
// §1 Non-goals — only the lookup shape is specified. A missing entry
// denies by default (fail-closed).
var defaultLadder = map[ladderKey]bool{
	{governance.CapsuleValid, governance.RiskReadOnly}: true,
	{governance.CapsuleValid, governance.RiskLow}:      true,
	{governance.CapsuleValid, governance.RiskMedium}:   true,
	{governance.CapsuleValid, governance.RiskHigh}:     true,

	{governance.CapsuleStale, governance.RiskReadOnly}: true,
	{governance.CapsuleStale, governance.RiskLow}:      true,
	{governance.CapsuleStale, governance.RiskMedium}:   false,
	{governance.CapsuleStale, governance.RiskHigh}:     false,

	{governance.CapsuleMissing, governance.RiskReadOnly}: true,
	{governance.CapsuleMissing, governance.RiskLow}:      false,
	{governance.CapsuleMissing, governance.RiskMedium}:   false,
	{governance.CapsuleMissing, governance.RiskHigh}:     false,
}

func degradationFor(state governance.CapsuleState) governance.DegradationLevel {
	switch state {
	case governance.CapsuleValid:
		return governance.DegradationNone
	case governance.CapsuleStale:
		return governance.DegradationPartial
	default:
		return governance.DegradationFull
	}
}

// ladderAllows consults the table; an unlisted (state, risk_class) pair
// denies.
func ladderAllows(state governance.CapsuleState, riskClass governance.RiskClass) bool {
	allowed, ok := defaultLadder[ladderKey{state, riskClass}]
	return ok && allowed
}
