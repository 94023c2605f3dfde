package crypto

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b hold identical bytes, without
// leaking timing information about where they first differ. Unequal
// lengths return false immediately; only the lengths, not the contents,
// affect timing in that case.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
