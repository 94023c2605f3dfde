package receipts

import (
	"context"
	"testing"

	"github.com/default-user/mathison/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests live inside package receipts (not receipts_test) because they
// need to drive raw SQL directly at the *sql.DB to prove the append-only
// triggers reject mutation outside of Append, which the public Store
// interface never exposes a path to do.

func TestSQLStore_TriggerRejectsUpdate(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DialectSQLite, ":memory:", crypto.NewHMACChainSignerWithKey([]byte("k")), nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(ctx, "job-trigger", Receipt{Stage: StageCIFIngress, Action: "a"})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE receipts SET action = 'tampered' WHERE job_id = ?`, "job-trigger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only: UPDATE not allowed")
}

func TestSQLStore_TriggerRejectsDelete(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DialectSQLite, ":memory:", crypto.NewHMACChainSignerWithKey([]byte("k")), nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(ctx, "job-trigger2", Receipt{Stage: StageCIFIngress, Action: "a"})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `DELETE FROM receipts WHERE job_id = ?`, "job-trigger2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only: DELETE not allowed")
}
