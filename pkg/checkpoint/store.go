package checkpoint

import (
	"context"
	"errors"

	"github.com/default-user/mathison/pkg/crypto"
)

// ErrNotFound is returned by Load when job_id has no checkpoint.
var ErrNotFound = errors.New("checkpoint: not found")

// ErrAlreadyExists is returned by Create when job_id already has a
// checkpoint.
var ErrAlreadyExists = errors.New("checkpoint: already exists")

// Store is the checkpoint persistence contract (spec C3).
type Store interface {
	Create(ctx context.Context, jobID, jobType string, inputs map[string]any) (Checkpoint, error)
	Load(ctx context.Context, jobID string) (Checkpoint, error)
	UpdateStage(ctx context.Context, jobID, stage string, outcome StageOutcome) (Checkpoint, error)
	MarkComplete(ctx context.Context, jobID string) (Checkpoint, error)
	MarkFailed(ctx context.Context, jobID, reason string) (Checkpoint, error)
	MarkResumableFailure(ctx context.Context, jobID, reason string) (Checkpoint, error)
	List(ctx context.Context) ([]Checkpoint, error)
}

// HashContent delegates to pkg/crypto's canonical content hash (spec C1),
// so a checkpoint's content hash is reproducible across process restarts
// and across store realizations.
func HashContent(v any) (string, error) {
	return crypto.ContentHash(v)
}

// VerifyContentHash recomputes HashContent(v) and compares it to expected
// in constant time.
func VerifyContentHash(v any, expected string) (bool, error) {
	got, err := HashContent(v)
	if err != nil {
		return false, err
	}
	return crypto.ConstantTimeEqual([]byte(got), []byte(expected)), nil
}
