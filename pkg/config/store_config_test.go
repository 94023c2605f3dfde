package config_test

import (
	"testing"

	"github.com/default-user/mathison/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStoreConfig_ValidFileBackend(t *testing.T) {
	t.Setenv("MATHISON_STORE_BACKEND", "FILE")
	t.Setenv("MATHISON_STORE_PATH", "/var/lib/mathison/receipts")

	cfg, err := config.LoadStoreConfig()
	require.NoError(t, err)
	assert.Equal(t, config.StoreBackendFile, cfg.Backend)
	assert.Equal(t, "/var/lib/mathison/receipts", cfg.Path)
}

func TestLoadStoreConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("MATHISON_STORE_BACKEND", "MONGO")
	t.Setenv("MATHISON_STORE_PATH", "/var/lib/mathison")

	_, err := config.LoadStoreConfig()
	require.ErrorIs(t, err, config.ErrStoreMisconfigured)
}

func TestLoadStoreConfig_RejectsMissingPath(t *testing.T) {
	t.Setenv("MATHISON_STORE_BACKEND", "SQLITE")
	t.Setenv("MATHISON_STORE_PATH", "")

	_, err := config.LoadStoreConfig()
	require.ErrorIs(t, err, config.ErrStoreMisconfigured)
}
