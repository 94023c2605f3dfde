package capabilities_test

import (
	"context"
	"testing"
	"time"

	"github.com/default-user/mathison/pkg/capabilities"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenStore_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	store := capabilities.NewMemoryTokenStore()

	tok, err := store.Issue(ctx, "read_file", "ns-1", "agent-1", time.Minute, nil)
	require.NoError(t, err)

	result, err := store.Verify(ctx, tok.TokenID, "ns-1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestMemoryTokenStore_VerifyFailsClosedOnUnknownID(t *testing.T) {
	store := capabilities.NewMemoryTokenStore()
	result, err := store.Verify(context.Background(), uuid.New(), "ns-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "unknown_token", result.Reason)
}

func TestMemoryTokenStore_WildcardNamespaceMatchesAny(t *testing.T) {
	ctx := context.Background()
	store := capabilities.NewMemoryTokenStore()

	tok, err := store.Issue(ctx, "admin_op", capabilities.WildcardNamespace, "root", time.Minute, nil)
	require.NoError(t, err)

	for _, ns := range []string{"ns-a", "ns-b", "anything"} {
		result, err := store.Verify(ctx, tok.TokenID, ns)
		require.NoError(t, err)
		assert.True(t, result.Valid, "wildcard token should verify for namespace %q", ns)
	}
}

func TestMemoryTokenStore_NamespaceMismatchRejected(t *testing.T) {
	ctx := context.Background()
	store := capabilities.NewMemoryTokenStore()

	tok, err := store.Issue(ctx, "read_file", "ns-1", "agent-1", time.Minute, nil)
	require.NoError(t, err)

	result, err := store.Verify(ctx, tok.TokenID, "ns-2")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "namespace_mismatch", result.Reason)
}

func TestMemoryTokenStore_MonotonicRevocation(t *testing.T) {
	ctx := context.Background()
	store := capabilities.NewMemoryTokenStore()

	tok, err := store.Issue(ctx, "read_file", "ns-1", "agent-1", time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, tok.TokenID))

	result, err := store.Verify(ctx, tok.TokenID, "ns-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "revoked", result.Reason)

	_, err = store.Cleanup(ctx)
	require.NoError(t, err)

	// K2: cleanup must never un-revoke.
	result, err = store.Verify(ctx, tok.TokenID, "ns-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestMemoryTokenStore_RevokeAllForNamespace(t *testing.T) {
	ctx := context.Background()
	store := capabilities.NewMemoryTokenStore()

	a, err := store.Issue(ctx, "read_file", "ns-1", "agent-1", time.Minute, nil)
	require.NoError(t, err)
	b, err := store.Issue(ctx, "write_file", "ns-1", "agent-2", time.Minute, nil)
	require.NoError(t, err)
	other, err := store.Issue(ctx, "read_file", "ns-2", "agent-3", time.Minute, nil)
	require.NoError(t, err)

	count, err := store.RevokeAllForNamespace(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []uuid.UUID{a.TokenID, b.TokenID} {
		result, err := store.Verify(ctx, id, "ns-1")
		require.NoError(t, err)
		assert.False(t, result.Valid)
	}

	result, err := store.Verify(ctx, other.TokenID, "ns-2")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

// TestProperty_RevocationIsMonotonic backs invariant K2: no sequence of
// Revoke/Cleanup calls ever makes a revoked token valid again.
func TestProperty_RevocationIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("revoked token stays invalid across any number of cleanups", prop.ForAll(
		func(cleanups int) bool {
			ctx := context.Background()
			store := capabilities.NewMemoryTokenStore()
			tok, err := store.Issue(ctx, "read_file", "ns-1", "agent-1", time.Hour, nil)
			if err != nil {
				return false
			}
			if err := store.Revoke(ctx, tok.TokenID); err != nil {
				return false
			}
			for i := 0; i < cleanups; i++ {
				if _, err := store.Cleanup(ctx); err != nil {
					return false
				}
			}
			result, err := store.Verify(ctx, tok.TokenID, "ns-1")
			return err == nil && !result.Valid
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
