package receipts

import (
	"context"
	"sync"

	"github.com/default-user/mathison/pkg/crypto"
)

// MemoryStore is an in-process Store, primarily for tests and the CLI's
// ephemeral mode. It holds the per-job-id append-only sequence behind a
// single mutex, matching spec §5's "per-store mutex while reading the
// tail, computing the new hash, writing durably" requirement.
type MemoryStore struct {
	mu    sync.Mutex
	chain chainCore
	byJob map[string][]Receipt
	order []Receipt // global insertion order across jobs
}

// NewMemoryStore creates an empty in-memory receipt store signed with signer.
func NewMemoryStore(signer crypto.ChainSigner) *MemoryStore {
	return &MemoryStore{
		chain: newChainCore(nil, signer),
		byJob: make(map[string][]Receipt),
	}
}

func (s *MemoryStore) Append(ctx context.Context, jobID string, r Receipt) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.JobID = jobID
	var prev *Receipt
	if existing := s.byJob[jobID]; len(existing) > 0 {
		prev = &existing[len(existing)-1]
	}

	sealed, err := s.chain.seal(r, prev)
	if err != nil {
		return Receipt{}, err
	}

	s.byJob[jobID] = append(s.byJob[jobID], sealed)
	s.order = append(s.order, sealed)
	return sealed, nil
}

func (s *MemoryStore) QueryByJob(ctx context.Context, jobID string) ([]Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byJob[jobID]
	out := make([]Receipt, len(existing))
	copy(out, existing)
	return out, nil
}

func (s *MemoryStore) Latest(ctx context.Context, jobID string) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byJob[jobID]
	if len(existing) == 0 {
		return Receipt{}, ErrNotFound
	}
	return existing[len(existing)-1], nil
}

func (s *MemoryStore) VerifyChain(ctx context.Context) (VerifyResult, error) {
	s.mu.Lock()
	byJob := make(map[string][]Receipt, len(s.byJob))
	for k, v := range s.byJob {
		cp := make([]Receipt, len(v))
		copy(cp, v)
		byJob[k] = cp
	}
	s.mu.Unlock()

	for _, job := range byJob {
		result, err := s.chain.verifySequence(job)
		if err != nil {
			return VerifyResult{}, err
		}
		if !result.Valid {
			return result, nil
		}
	}
	return VerifyResult{Valid: true}, nil
}
