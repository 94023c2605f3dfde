package executor

import "context"

// Stop implements the STOP command (spec §4.7): it revokes every
// capability token live in namespaceID and returns the revoked count with
// State FAILED. The Pipeline keeps no per-trace state, so traceID is not
// used: Stop does not look up, halt or mark any in-flight Execute call, and
// the result carries no STOP_COMMAND reason. STOP dominates any concurrent stage attempt —
// capabilities.TokenStore.RevokeAllForNamespace adds every token to the
// monotonic revocation set before this call returns, so any CDI_ACTION or
// handler stage racing against it will observe the revoked tokens on its
// next Verify call.
func (p *Pipeline) Stop(ctx context.Context, traceID, namespaceID string) (StopResult, error) {
	revoked, err := p.tokens.RevokeAllForNamespace(ctx, namespaceID)
	if err != nil {
		return StopResult{}, err
	}

	return StopResult{
		RevokedTokens: revoked,
		State:         StageFailed,
	}, nil
}
