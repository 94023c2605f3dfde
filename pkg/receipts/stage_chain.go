package receipts

import (
	"fmt"
	"time"

	"github.com/default-user/mathison/pkg/crypto"
	"github.com/google/uuid"
)

// NewStageReceipt computes hash and links prevHash for the next receipt in
// an in-flight PipelineState's chain (invariants R1/R2): the first
// receipt's prev_hash is the literal GENESIS; every subsequent receipt's
// prev_hash equals its predecessor's hash. Unlike the durable Receipt's
// chain_signature (HMAC-keyed), StageReceipt.Hash is a plain content hash
// — it authenticates the in-flight chain returned to the caller, while the
// durable log additionally carries the keyed signature.
func NewStageReceipt(stage Stage, traceID string, result Result, details map[string]any, prev *StageReceipt) (StageReceipt, error) {
	prevHash := crypto.GenesisPrevHash
	if prev != nil {
		prevHash = prev.Hash
	}

	r := StageReceipt{
		ReceiptID: uuid.New().String(),
		Stage:     stage,
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Result:    result,
		Details:   details,
		PrevHash:  prevHash,
	}

	hash, err := crypto.ContentHash(r.hashableForm())
	if err != nil {
		return StageReceipt{}, fmt.Errorf("receipts: failed to hash stage receipt: %w", err)
	}
	r.Hash = hash
	return r, nil
}

// VerifyStageChain recomputes the hash of every receipt in chain and checks
// R1/R2 linkage, for callers validating a ReceiptChain returned from a
// response.
func VerifyStageChain(chain []StageReceipt) (valid bool, brokenAt int) {
	expectedPrev := crypto.GenesisPrevHash
	for i, r := range chain {
		if r.PrevHash != expectedPrev {
			return false, i
		}
		recomputed, err := crypto.ContentHash(r.hashableForm())
		if err != nil || recomputed != r.Hash {
			return false, i
		}
		expectedPrev = r.Hash
	}
	return true, -1
}

// BuildChain assembles the response-level ReceiptChain from an ordered
// slice of StageReceipts. complete is true iff exactly five PASS receipts
// in prescribed order are present (testable property 1).
func BuildChain(traceID string, stageReceipts []StageReceipt) ReceiptChain {
	chain := ReceiptChain{
		TraceID:  traceID,
		Receipts: stageReceipts,
	}
	if len(stageReceipts) > 0 {
		chain.FinalHash = stageReceipts[len(stageReceipts)-1].Hash
	}
	chain.Complete = isComplete(stageReceipts)
	return chain
}

func isComplete(stageReceipts []StageReceipt) bool {
	if len(stageReceipts) != len(Stages) {
		return false
	}
	for i, want := range Stages {
		if stageReceipts[i].Stage != want || stageReceipts[i].Result != ResultPass {
			return false
		}
	}
	return true
}
