package receipts_test

import (
	"testing"

	"github.com/default-user/mathison/pkg/receipts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFullChain(t *testing.T, traceID string) []receipts.StageReceipt {
	t.Helper()
	var prev *receipts.StageReceipt
	var chain []receipts.StageReceipt
	for _, stage := range receipts.Stages {
		r, err := receipts.NewStageReceipt(stage, traceID, receipts.ResultPass, nil, prev)
		require.NoError(t, err)
		chain = append(chain, r)
		prev = &chain[len(chain)-1]
	}
	return chain
}

func TestNewStageReceipt_GenesisPrevHash(t *testing.T) {
	r, err := receipts.NewStageReceipt(receipts.StageCIFIngress, "trace-1", receipts.ResultPass, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "GENESIS", r.PrevHash)
	assert.NotEmpty(t, r.Hash)
}

func TestVerifyStageChain_ValidFullChain(t *testing.T) {
	chain := buildFullChain(t, "trace-2")
	valid, brokenAt := receipts.VerifyStageChain(chain)
	assert.True(t, valid)
	assert.Equal(t, -1, brokenAt)
}

func TestVerifyStageChain_DetectsTamper(t *testing.T) {
	chain := buildFullChain(t, "trace-3")
	chain[2].Details = map[string]any{"tampered": true}

	valid, brokenAt := receipts.VerifyStageChain(chain)
	assert.False(t, valid)
	assert.Equal(t, 2, brokenAt)
}

func TestBuildChain_CompleteRequiresAllFivePass(t *testing.T) {
	full := buildFullChain(t, "trace-4")
	chain := receipts.BuildChain("trace-4", full)
	assert.True(t, chain.Complete)
	assert.Equal(t, full[len(full)-1].Hash, chain.FinalHash)

	partial := full[:3]
	partialChain := receipts.BuildChain("trace-4", partial)
	assert.False(t, partialChain.Complete)
}

func TestBuildChain_FailAnywhereIsIncomplete(t *testing.T) {
	full := buildFullChain(t, "trace-5")
	full[1].Result = receipts.ResultFail
	chain := receipts.BuildChain("trace-5", full)
	assert.False(t, chain.Complete)
}

// TestProperty_StageChainLinkageHolds is the gopter property backing
// testable property 4 ("an honest chain of N stage receipts always
// verifies"): any sequence of stage results produced through
// NewStageReceipt's prev-linking is internally consistent.
func TestProperty_StageChainLinkageHolds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("chain of N linked receipts always verifies", prop.ForAll(
		func(n int) bool {
			var prev *receipts.StageReceipt
			var chain []receipts.StageReceipt
			for i := 0; i < n; i++ {
				stage := receipts.Stages[i%len(receipts.Stages)]
				r, err := receipts.NewStageReceipt(stage, "prop-trace", receipts.ResultPass, nil, prev)
				if err != nil {
					return false
				}
				chain = append(chain, r)
				prev = &chain[len(chain)-1]
			}
			valid, brokenAt := receipts.VerifyStageChain(chain)
			return valid && brokenAt == -1
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
