package registry_test

import (
	"context"
	"testing"

	"github.com/default-user/mathison/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, input map[string]any) (map[string]any, error) {
	return input, nil
}

func TestHandlerRegistry_RegisterAndDispatch(t *testing.T) {
	proof := registry.NewDispatchProof()
	reg := registry.NewHandlerRegistry(proof)

	err := reg.Register(registry.RegisteredHandler{
		Metadata: registry.HandlerMetadata{Intent: "read_file", RiskClass: "low"},
		Fn:       echoHandler,
	})
	require.NoError(t, err)

	out, err := reg.Dispatch(context.Background(), proof, "read_file", map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", out["path"])
}

func TestHandlerRegistry_DispatchRejectsForeignProof(t *testing.T) {
	proof := registry.NewDispatchProof()
	reg := registry.NewHandlerRegistry(proof)
	require.NoError(t, reg.Register(registry.RegisteredHandler{
		Metadata: registry.HandlerMetadata{Intent: "read_file"},
		Fn:       echoHandler,
	}))

	foreign := registry.NewDispatchProof()
	_, err := reg.Dispatch(context.Background(), foreign, "read_file", nil)
	assert.ErrorIs(t, err, registry.ErrInvalidProof)
}

func TestHandlerRegistry_MetadataNeverExposesHandlerFunc(t *testing.T) {
	proof := registry.NewDispatchProof()
	reg := registry.NewHandlerRegistry(proof)
	require.NoError(t, reg.Register(registry.RegisteredHandler{
		Metadata: registry.HandlerMetadata{Intent: "read_file", RiskClass: "low", Description: "reads a file"},
		Fn:       echoHandler,
	}))

	meta, ok := reg.Metadata("read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", meta.Intent)
	assert.Equal(t, "low", meta.RiskClass)
}

func TestHandlerRegistry_RegisterFailsAfterSeal(t *testing.T) {
	reg := registry.NewHandlerRegistry(registry.NewDispatchProof())
	reg.Seal()

	err := reg.Register(registry.RegisteredHandler{Metadata: registry.HandlerMetadata{Intent: "x"}, Fn: echoHandler})
	assert.ErrorIs(t, err, registry.ErrSealed)
}

func TestHandlerRegistry_RegisterFailsOnDuplicateIntent(t *testing.T) {
	reg := registry.NewHandlerRegistry(registry.NewDispatchProof())
	require.NoError(t, reg.Register(registry.RegisteredHandler{Metadata: registry.HandlerMetadata{Intent: "x"}, Fn: echoHandler}))

	err := reg.Register(registry.RegisteredHandler{Metadata: registry.HandlerMetadata{Intent: "x"}, Fn: echoHandler})
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
}

func TestHandlerRegistry_DispatchUnknownIntent(t *testing.T) {
	proof := registry.NewDispatchProof()
	reg := registry.NewHandlerRegistry(proof)

	_, err := reg.Dispatch(context.Background(), proof, "nope", nil)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
