package checkpoint_test

import (
	"context"
	"testing"

	"github.com/default-user/mathison/pkg/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent_DeterministicAcrossCalls(t *testing.T) {
	v := map[string]any{"b": 2, "a": 1}
	h1, err := checkpoint.HashContent(v)
	require.NoError(t, err)
	h2, err := checkpoint.HashContent(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestVerifyContentHash_DetectsMismatch(t *testing.T) {
	h, err := checkpoint.HashContent(map[string]any{"x": 1})
	require.NoError(t, err)

	ok, err := checkpoint.VerifyContentHash(map[string]any{"x": 1}, h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checkpoint.VerifyContentHash(map[string]any{"x": 2}, h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func runStoreLifecycle(t *testing.T, store checkpoint.Store) {
	t.Helper()
	ctx := context.Background()

	cp, err := store.Create(ctx, "job-1", "tool_invocation", map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusRunning, cp.Status)

	_, err = store.Create(ctx, "job-1", "tool_invocation", nil)
	assert.ErrorIs(t, err, checkpoint.ErrAlreadyExists)

	cp, err = store.UpdateStage(ctx, "job-1", "CIF_INGRESS", checkpoint.StageOutcome{Success: true})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusRunning, cp.Status)
	assert.Contains(t, cp.Stages, "CIF_INGRESS")

	cp, err = store.UpdateStage(ctx, "job-1", "CDI_ACTION", checkpoint.StageOutcome{Success: false, Error: "denied"})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusResumableFailure, cp.Status)
	assert.Equal(t, "denied", cp.Reason)

	cp, err = store.MarkFailed(ctx, "job-1", "terminal denial")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, cp.Status)

	loaded, err := store.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, cp.Status, loaded.Status)

	_, err = store.Load(ctx, "nonexistent")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	runStoreLifecycle(t, checkpoint.NewMemoryStore())
}

func TestFileStore_Lifecycle(t *testing.T) {
	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	runStoreLifecycle(t, store)
}

func TestFileStore_MarkCompleteSucceedsOnHealthyRun(t *testing.T) {
	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "job-ok", "tool_invocation", nil)
	require.NoError(t, err)

	cp, err := store.MarkComplete(ctx, "job-ok")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusDone, cp.Status)
}
