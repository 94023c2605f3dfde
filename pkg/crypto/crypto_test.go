package crypto_test

import (
	"testing"

	"github.com/default-user/mathison/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_Deterministic(t *testing.T) {
	payload := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"z": "1", "y": true}}

	h1, err := crypto.ContentHash(payload)
	require.NoError(t, err)
	h2, err := crypto.ContentHash(payload)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}

func TestContentHash_KeyOrderDoesNotMatter(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 2, "a": 1}

	ha, err := crypto.ContentHash(a)
	require.NoError(t, err)
	hb, err := crypto.ContentHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestHMACChainSigner_FailsClosedWithoutKey(t *testing.T) {
	signer := crypto.NewHMACChainSigner()

	_, err := signer.Sign("hash", crypto.GenesisPrevHash, 1)
	require.ErrorIs(t, err, crypto.ErrKeyNotInitialized)

	_, err = signer.Verify("hash", crypto.GenesisPrevHash, 1, "deadbeef")
	require.ErrorIs(t, err, crypto.ErrKeyNotInitialized)
}

func TestHMACChainSigner_SignVerifyRoundTrip(t *testing.T) {
	key, err := crypto.RandomToken()
	require.NoError(t, err)
	signer := crypto.NewHMACChainSignerWithKey(key)

	sig, err := signer.Sign("contenthash", crypto.GenesisPrevHash, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	ok, err := signer.Verify("contenthash", crypto.GenesisPrevHash, 1, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHMACChainSigner_DetectsTamper(t *testing.T) {
	key, err := crypto.RandomToken()
	require.NoError(t, err)
	signer := crypto.NewHMACChainSignerWithKey(key)

	sig, err := signer.Sign("contenthash", crypto.GenesisPrevHash, 1)
	require.NoError(t, err)

	ok, err := signer.Verify("tampered-hash", crypto.GenesisPrevHash, 1, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = signer.Verify("contenthash", crypto.GenesisPrevHash, 2, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRandomToken_Size(t *testing.T) {
	tok, err := crypto.RandomToken()
	require.NoError(t, err)
	assert.Len(t, tok, crypto.TokenSize)

	tok2, err := crypto.RandomToken()
	require.NoError(t, err)
	assert.NotEqual(t, tok, tok2)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, crypto.ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, crypto.ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, crypto.ConstantTimeEqual([]byte("abc"), []byte("abcd")))
}
