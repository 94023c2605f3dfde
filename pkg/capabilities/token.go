package capabilities

import (
	"time"

	"github.com/google/uuid"
)

// Token is a short-lived, namespace-scoped capability grant (spec C4): the
// credential a caller presents to exercise a capability.
type Token struct {
	TokenID     uuid.UUID      `json:"token_id"`
	CapID       string         `json:"capability"`
	NamespaceID string         `json:"namespace_id"`
	PrincipalID string         `json:"principal_id"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// WildcardNamespace matches any namespace during verification (invariant
// K1), intended for administrative tokens.
const WildcardNamespace = "*"

func (t Token) expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t Token) matchesNamespace(namespaceID string) bool {
	return t.NamespaceID == WildcardNamespace || t.NamespaceID == namespaceID
}

// VerifyResult is the outcome of Store.Verify.
type VerifyResult struct {
	Valid  bool
	Reason string
}
