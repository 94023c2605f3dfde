package receipts

import (
	"context"
	"errors"
	"fmt"

	"github.com/default-user/mathison/pkg/crypto"
)

// ErrChainBroken is returned by SQLStore's QueryByJob and Latest when a
// receipt's chain_signature fails to reproduce on read. VerifyChain reports
// a broken chain through VerifyResult instead.
var ErrChainBroken = errors.New("receipts: hash chain is broken")

// ErrNotFound is returned when a lookup finds nothing.
var ErrNotFound = errors.New("receipts: entry not found")

// VerifyResult is the outcome of a chain verification pass.
type VerifyResult struct {
	Valid     bool
	BrokenAt  uint64 // first offending sequence number, only meaningful if !Valid
	Reason    string
}

// Store is the append-only receipt log contract (spec C2). Both the file
// and relational realizations satisfy it.
type Store interface {
	// Append durably writes one receipt, computing prev_hash from the
	// prior tail for job_id, assigning the next sequence_number, and
	// computing chain_signature. Atomic: either the receipt lands with a
	// valid signature or nothing is written.
	Append(ctx context.Context, jobID string, r Receipt) (Receipt, error)
	// QueryByJob returns every receipt for job_id in insertion order.
	QueryByJob(ctx context.Context, jobID string) ([]Receipt, error)
	// Latest returns the most recent receipt for job_id, or ErrNotFound.
	Latest(ctx context.Context, jobID string) (Receipt, error)
	// VerifyChain recomputes every content hash and signature and checks
	// prev-hash/sequence linkage across the entire store.
	VerifyChain(ctx context.Context) (VerifyResult, error)
}

// chainCore is the hash-chain bookkeeping shared by every Store
// realization: compute a receipt's content hash, its chain_signature, and
// verify a full ordered sequence. Embedding this keeps the linking logic
// — and therefore its correctness — in exactly one place.
type chainCore struct {
	hasher crypto.Hasher
	signer crypto.ChainSigner
}

func newChainCore(hasher crypto.Hasher, signer crypto.ChainSigner) chainCore {
	if hasher == nil {
		hasher = crypto.NewCanonicalHasher()
	}
	return chainCore{hasher: hasher, signer: signer}
}

// contentHash hashes every field of r except the chain-linkage fields
// themselves (prev_hash, sequence_number, chain_signature), matching spec
// §4.2's "computes prev_hash from prior tail" framing: the content hash is
// of the receipt's payload, the signature is what binds it into the chain.
func (c chainCore) contentHash(r Receipt) (string, error) {
	payload := r
	payload.PrevHash = ""
	payload.SequenceNumber = 0
	payload.ChainSignature = ""
	return c.hasher.Hash(payload)
}

// seal computes prev_hash/sequence_number/chain_signature for the next
// receipt in a job's chain, given the previous tail (nil for genesis).
func (c chainCore) seal(r Receipt, prev *Receipt) (Receipt, error) {
	contentHash, err := c.contentHash(r)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to hash receipt content: %w", err)
	}

	prevHash := crypto.GenesisPrevHash
	seq := uint64(1)
	if prev != nil {
		prevHash = prev.ChainSignature
		seq = prev.SequenceNumber + 1
	}

	sig, err := c.signer.Sign(contentHash, prevHash, seq)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to sign receipt: %w", err)
	}

	r.PrevHash = prevHash
	r.SequenceNumber = seq
	r.ChainSignature = sig
	return r, nil
}

// verifySequence checks an ordered per-job sequence for linkage and
// signature validity, returning the first broken sequence number if any.
func (c chainCore) verifySequence(receipts []Receipt) (VerifyResult, error) {
	prevHash := crypto.GenesisPrevHash
	for _, r := range receipts {
		if r.PrevHash != prevHash {
			return VerifyResult{Valid: false, BrokenAt: r.SequenceNumber, Reason: "prev_hash linkage mismatch"}, nil
		}
		contentHash, err := c.contentHash(r)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("receipts: failed to recompute content hash: %w", err)
		}
		ok, err := c.signer.Verify(contentHash, r.PrevHash, r.SequenceNumber, r.ChainSignature)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("receipts: failed to verify chain_signature: %w", err)
		}
		if !ok {
			return VerifyResult{Valid: false, BrokenAt: r.SequenceNumber, Reason: "chain_signature mismatch"}, nil
		}
		prevHash = r.ChainSignature
	}
	return VerifyResult{Valid: true}, nil
}
