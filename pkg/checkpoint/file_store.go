package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/default-user/mathison/pkg/seal"
)

// FileStore persists one JSON file per job (checkpoint-<job_id>.json),
// replacing the whole file on every write via a write-to-temp-then-rename
// so a crash mid-write never leaves a half-written checkpoint behind —
// mirroring the teacher's artifacts store's full-replace persistence idiom.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore opens (creating if absent) a file-backed checkpoint store
// rooted at dir. capabilityToken is checked against the process-wide
// storage seal (pkg/seal) before anything is created.
func NewFileStore(dir string, capabilityToken []byte) (*FileStore, error) {
	if err := seal.Default.AssertCapability(capabilityToken); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint-%s.json", jobID))
}

func (s *FileStore) readLocked(jobID string) (Checkpoint, error) {
	data, err := os.ReadFile(s.path(jobID))
	if os.IsNotExist(err) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: failed to read %s: %w", jobID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: corrupt record for %s: %w", jobID, err)
	}
	return cp, nil
}

// writeLocked atomically replaces the full record for cp.JobID.
func (s *FileStore) writeLocked(cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: failed to marshal record: %w", err)
	}

	tmp := s.path(cp.JobID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: failed to write temp record: %w", err)
	}
	if err := os.Rename(tmp, s.path(cp.JobID)); err != nil {
		return fmt.Errorf("checkpoint: failed to finalize record: %w", err)
	}
	return nil
}

func (s *FileStore) Create(ctx context.Context, jobID, jobType string, inputs map[string]any) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(jobID)); err == nil {
		return Checkpoint{}, ErrAlreadyExists
	}

	now := time.Now().UTC()
	cp := Checkpoint{
		JobID:     jobID,
		JobType:   jobType,
		Inputs:    inputs,
		Status:    StatusRunning,
		Stages:    make(map[string]StageOutcome),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.writeLocked(cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *FileStore) Load(ctx context.Context, jobID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(jobID)
}

func (s *FileStore) UpdateStage(ctx context.Context, jobID, stage string, outcome StageOutcome) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.readLocked(jobID)
	if err != nil {
		return Checkpoint{}, err
	}

	outcome.Stage = stage
	outcome.UpdatedAt = time.Now().UTC()

	cp.Stages = cloneStages(cp.Stages)
	cp.Stages[stage] = outcome
	cp.UpdatedAt = outcome.UpdatedAt
	if !outcome.Success {
		cp.Status = StatusResumableFailure
		cp.Reason = outcome.Error
	}

	if err := s.writeLocked(cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *FileStore) MarkComplete(ctx context.Context, jobID string) (Checkpoint, error) {
	return s.transition(jobID, StatusDone, "")
}

func (s *FileStore) MarkFailed(ctx context.Context, jobID, reason string) (Checkpoint, error) {
	return s.transition(jobID, StatusFailed, reason)
}

func (s *FileStore) MarkResumableFailure(ctx context.Context, jobID, reason string) (Checkpoint, error) {
	return s.transition(jobID, StatusResumableFailure, reason)
}

func (s *FileStore) transition(jobID string, status Status, reason string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.readLocked(jobID)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.Status = status
	cp.Reason = reason
	cp.UpdatedAt = time.Now().UTC()

	if err := s.writeLocked(cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *FileStore) List(ctx context.Context) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to list store dir: %w", err)
	}

	const prefix = "checkpoint-"
	const suffix = ".json"

	var out []Checkpoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		jobID := name[len(prefix) : len(name)-len(suffix)]
		cp, err := s.readLocked(jobID)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}
