package config

import (
	"errors"
	"fmt"
	"os"
)

// ErrStoreMisconfigured is the boot-time failure spec.md §6 names
// STORE_MISCONFIGURED: the process refuses to boot rather than silently
// falling back to an ephemeral store.
var ErrStoreMisconfigured = errors.New("config: STORE_MISCONFIGURED")

// StoreBackend selects which receipts.Store / checkpoint.Store realization
// the process boots with.
type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "FILE"
	StoreBackendSQLite StoreBackend = "SQLITE"
)

// StoreConfig is the resolved, validated storage configuration a mathison
// process boots with.
type StoreConfig struct {
	Backend StoreBackend
	Path    string
}

// LoadStoreConfig reads MATHISON_STORE_BACKEND and MATHISON_STORE_PATH.
// Both are required; an unrecognized backend or a missing path fails fast
// with ErrStoreMisconfigured rather than booting into an unintended
// ephemeral mode.
func LoadStoreConfig() (StoreConfig, error) {
	backend := StoreBackend(os.Getenv("MATHISON_STORE_BACKEND"))
	path := os.Getenv("MATHISON_STORE_PATH")

	switch backend {
	case StoreBackendFile, StoreBackendSQLite:
	default:
		return StoreConfig{}, fmt.Errorf("%w: MATHISON_STORE_BACKEND must be one of FILE, SQLITE, got %q", ErrStoreMisconfigured, backend)
	}

	if path == "" {
		return StoreConfig{}, fmt.Errorf("%w: MATHISON_STORE_PATH is required", ErrStoreMisconfigured)
	}

	return StoreConfig{Backend: backend, Path: path}, nil
}
