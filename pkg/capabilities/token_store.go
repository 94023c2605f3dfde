package capabilities

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenStore is the capability-token lifecycle contract (spec C4).
type TokenStore interface {
	Issue(ctx context.Context, capability, namespaceID, principalID string, ttl time.Duration, constraints map[string]any) (Token, error)
	Verify(ctx context.Context, tokenID uuid.UUID, namespaceID string) (VerifyResult, error)
	Revoke(ctx context.Context, tokenID uuid.UUID) error
	RevokeAllForNamespace(ctx context.Context, namespaceID string) (int, error)
	Cleanup(ctx context.Context) (int, error)
}

// MemoryTokenStore is the in-process realization of TokenStore: a live map
// guarded by sync.RWMutex plus a revocation set that is never cleared by
// Cleanup, enforcing invariant K2 (monotonic revocation) even for tokens
// whose natural TTL has not yet elapsed.
type MemoryTokenStore struct {
	mu        sync.RWMutex
	live      map[uuid.UUID]Token
	revokedID map[uuid.UUID]struct{}
	now       func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		live:      make(map[uuid.UUID]Token),
		revokedID: make(map[uuid.UUID]struct{}),
		now:       time.Now,
	}
}

func (s *MemoryTokenStore) Issue(ctx context.Context, capability, namespaceID, principalID string, ttl time.Duration, constraints map[string]any) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	t := Token{
		TokenID:     uuid.New(),
		CapID:       capability,
		NamespaceID: namespaceID,
		PrincipalID: principalID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		Constraints: constraints,
	}
	s.live[t.TokenID] = t
	return t, nil
}

// Verify fails closed: an unknown token ID is never treated as valid, per
// spec C4 ("fails closed on unknown IDs").
func (s *MemoryTokenStore) Verify(ctx context.Context, tokenID uuid.UUID, namespaceID string) (VerifyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, revoked := s.revokedID[tokenID]; revoked {
		return VerifyResult{Valid: false, Reason: "revoked"}, nil
	}

	t, ok := s.live[tokenID]
	if !ok {
		return VerifyResult{Valid: false, Reason: "unknown_token"}, nil
	}
	if t.expired(s.now().UTC()) {
		return VerifyResult{Valid: false, Reason: "expired"}, nil
	}
	if !t.matchesNamespace(namespaceID) {
		return VerifyResult{Valid: false, Reason: "namespace_mismatch"}, nil
	}
	return VerifyResult{Valid: true}, nil
}

func (s *MemoryTokenStore) Revoke(ctx context.Context, tokenID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokedID[tokenID] = struct{}{}
	delete(s.live, tokenID)
	return nil
}

func (s *MemoryTokenStore) RevokeAllForNamespace(ctx context.Context, namespaceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, t := range s.live {
		if t.NamespaceID == namespaceID {
			s.revokedID[id] = struct{}{}
			delete(s.live, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryTokenStore) Cleanup(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	count := 0
	for id, t := range s.live {
		if t.expired(now) {
			delete(s.live, id)
			count++
		}
	}
	// revokedID is intentionally never pruned: monotonic revocation (K2)
	// means a revoked ID must stay rejected even after its natural TTL
	// would have expired it anyway.
	return count, nil
}
