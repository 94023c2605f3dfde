// Package seal implements the process-wide storage seal (spec C6): a
// one-way lockdown after which direct construction of storage adapters
// (receipt stores, checkpoint stores) requires presenting the governance
// capability minted at seal time.
package seal

import (
	"errors"
	"sync"
	"time"

	"github.com/default-user/mathison/pkg/crypto"
)

// ErrGovernanceBypassDetected is raised whenever a storage adapter is
// constructed post-seal without a valid governance capability. It is
// always fatal for the offending operation.
var ErrGovernanceBypassDetected = errors.New("seal: GOVERNANCE_BYPASS_DETECTED")

// ErrUnsealRefused is returned by Unseal when the environment indicates
// production; the testing-only escape hatch refuses to run there.
var ErrUnsealRefused = errors.New("seal: unseal refused outside test environments")

// State is the process-wide storage seal. The zero value is unsealed.
// Exactly one State is meant to exist per process; New is exposed mainly
// so tests can construct independent instances instead of sharing
// process-global state.
type State struct {
	mu         sync.Mutex
	sealed     bool
	capability []byte
	sealedAt   time.Time
}

// New returns an unsealed seal state.
func New() *State {
	return &State{}
}

// Default is the process-wide seal instance. pkg/receipts and
// pkg/checkpoint storage-adapter factories gate against Default; tests
// construct their own State via New to avoid cross-test interference.
var Default = New()

// Seal moves the seal to the sealed state, minting a 256-bit cryptographic
// governance capability. Seal is idempotent: calling it again after the
// first call returns the same capability and sealed_at without minting a
// new one.
func (s *State) Seal() ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return s.capability, s.sealedAt, nil
	}

	cap, err := crypto.RandomToken()
	if err != nil {
		return nil, time.Time{}, err
	}

	s.capability = cap
	s.sealedAt = time.Now().UTC()
	s.sealed = true
	return s.capability, s.sealedAt, nil
}

// Sealed reports whether Seal has been called.
func (s *State) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// SealedAt returns the time Seal was first called; zero value if unsealed.
func (s *State) SealedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealedAt
}

// AssertCapability gates construction of a storage adapter. Pre-seal it
// always permits. Post-seal it requires token to match the minted
// governance capability byte-for-byte, compared in constant time.
func (s *State) AssertCapability(token []byte) error {
	s.mu.Lock()
	sealed := s.sealed
	want := s.capability
	s.mu.Unlock()

	if !sealed {
		return nil
	}
	if !crypto.ConstantTimeEqual(token, want) {
		return ErrGovernanceBypassDetected
	}
	return nil
}

// Unseal is a testing-only escape hatch. It refuses to run when env
// indicates a production deployment (e.g. MATHISON_ENV=production).
func (s *State) Unseal(env string) error {
	if env == "production" {
		return ErrUnsealRefused
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = false
	s.capability = nil
	s.sealedAt = time.Time{}
	return nil
}
