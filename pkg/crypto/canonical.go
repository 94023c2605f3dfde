// Package crypto provides the cryptographic primitives the governance
// kernel is built on: canonical hashing, keyed chain signing, randomness,
// and constant-time comparison. Nothing here is policy.
package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalMarshal serializes v into RFC 8785 JSON Canonicalization Scheme
// (JCS) bytes: sorted object keys, no insignificant whitespace, canonical
// number formatting.
//
// Go's json.Marshal already sorts map keys and, with HTML escaping
// disabled, produces a compact encoding, but it does not canonicalize
// number formatting or unicode escaping the way JCS requires. We marshal
// once to get well-formed JSON and hand it to jcs.Transform for the
// final canonical form rather than re-implementing RFC 8785 by hand.
func CanonicalMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("crypto: json encode for canonicalization failed: %w", err)
	}

	transformed, err := jcs.Transform(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("crypto: JCS transform failed: %w", err)
	}
	return transformed, nil
}

// GenesisPrevHash is the literal prev_hash value of the first receipt in
// any chain (invariant R1).
const GenesisPrevHash = "GENESIS"
