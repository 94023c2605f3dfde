package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher provides deterministic content hashing over canonical JSON.
type Hasher interface {
	Hash(v any) (string, error)
}

// CanonicalHasher hashes values via JCS canonicalization (see CanonicalMarshal)
// followed by SHA-256. Two calls with equal values always produce equal
// digests, across processes and restarts.
type CanonicalHasher struct{}

func NewCanonicalHasher() *CanonicalHasher {
	return &CanonicalHasher{}
}

func (h *CanonicalHasher) Hash(v any) (string, error) {
	return ContentHash(v)
}

// ContentHash is the package-level entry point for spec C1's content_hash:
// SHA-256 over the canonical JSON serialization of v.
func ContentHash(v any) (string, error) {
	canonical, err := CanonicalMarshal(v)
	if err != nil {
		return "", fmt.Errorf("crypto: content hash failed: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
