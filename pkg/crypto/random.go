package crypto

import (
	"crypto/rand"
	"fmt"
)

// TokenSize is the byte length of governance capabilities and minted
// secrets (256 bits).
const TokenSize = 32

// RandomToken returns 32 bytes read from the OS CSPRNG. Used for the
// storage seal's governance capability and for any process-local secret
// that must be forgery-resistant.
func RandomToken() ([]byte, error) {
	buf := make([]byte, TokenSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random token: %w", err)
	}
	return buf, nil
}
