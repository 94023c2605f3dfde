package receipts

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/default-user/mathison/pkg/crypto"
	"github.com/default-user/mathison/pkg/seal"
)

// DefaultSegmentCeiling is the default byte size at which FileStore rotates
// to a new segment file, per spec §5's "rotation on a configured byte
// ceiling" shared-resource policy.
const DefaultSegmentCeiling = 64 * 1024 * 1024

// FileStore is the segmented-JSONL realization of Store: an append-only
// sequence of eventlog-NNNN.jsonl files under Dir, one receipt per line,
// guarded by a single mutex across tail-read/hash/write (spec §5).
type FileStore struct {
	mu             sync.Mutex
	dir            string
	segmentCeiling int64
	chain          chainCore

	activeSegment int
	activeSize    int64
	tail          map[string]Receipt // jobID -> last-written receipt
	order         []string           // jobIDs in first-seen order
}

// NewFileStore opens (creating if absent) a segmented receipt log rooted at
// dir, signed with signer. capabilityToken is checked against the
// process-wide storage seal (pkg/seal) before anything is opened: once
// sealed, only the holder of the minted governance capability may stand up
// a new store. It replays existing segments to rebuild the in-memory tail
// index.
func NewFileStore(dir string, signer crypto.ChainSigner, capabilityToken []byte) (*FileStore, error) {
	if err := seal.Default.AssertCapability(capabilityToken); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("receipts: failed to create store dir: %w", err)
	}

	s := &FileStore{
		dir:            dir,
		segmentCeiling: DefaultSegmentCeiling,
		chain:          newChainCore(nil, signer),
		tail:           make(map[string]Receipt),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) segmentPath(n int) string {
	return filepath.Join(s.dir, fmt.Sprintf("eventlog-%04d.jsonl", n))
}

func (s *FileStore) replay() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("receipts: failed to list store dir: %w", err)
	}

	var segments []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(e.Name(), "eventlog-%04d.jsonl", &n); err == nil {
			segments = append(segments, n)
		}
	}
	sort.Ints(segments)

	if len(segments) == 0 {
		s.activeSegment = 0
		return nil
	}

	for _, n := range segments {
		size, err := s.replaySegment(n)
		if err != nil {
			return err
		}
		s.activeSegment = n
		s.activeSize = size
	}
	return nil
}

func (s *FileStore) replaySegment(n int) (int64, error) {
	f, err := os.Open(s.segmentPath(n))
	if err != nil {
		return 0, fmt.Errorf("receipts: failed to open segment %d: %w", n, err)
	}
	defer f.Close()

	var size int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		size += int64(len(line)) + 1
		var r Receipt
		if err := json.Unmarshal(line, &r); err != nil {
			return 0, fmt.Errorf("receipts: corrupt segment %d: %w", n, err)
		}
		if _, seen := s.tail[r.JobID]; !seen {
			s.order = append(s.order, r.JobID)
		}
		s.tail[r.JobID] = r
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("receipts: failed scanning segment %d: %w", n, err)
	}
	return size, nil
}

func (s *FileStore) Append(ctx context.Context, jobID string, r Receipt) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.JobID = jobID
	var prev *Receipt
	if p, ok := s.tail[jobID]; ok {
		prev = &p
	}

	sealed, err := s.chain.seal(r, prev)
	if err != nil {
		return Receipt{}, err
	}

	line, err := json.Marshal(sealed)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to marshal receipt: %w", err)
	}
	line = append(line, '\n')

	if s.activeSize+int64(len(line)) > s.segmentCeiling && s.activeSize > 0 {
		s.activeSegment++
		s.activeSize = 0
	}

	f, err := os.OpenFile(s.segmentPath(s.activeSegment), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to open segment for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to append receipt: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to fsync segment: %w", err)
	}

	s.activeSize += int64(len(line))
	if _, seen := s.tail[jobID]; !seen {
		s.order = append(s.order, jobID)
	}
	s.tail[jobID] = sealed
	return sealed, nil
}

func (s *FileStore) QueryByJob(ctx context.Context, jobID string) ([]Receipt, error) {
	all, err := s.allReceipts()
	if err != nil {
		return nil, err
	}
	var out []Receipt
	for _, r := range all {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FileStore) Latest(ctx context.Context, jobID string) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.tail[jobID]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return r, nil
}

func (s *FileStore) VerifyChain(ctx context.Context) (VerifyResult, error) {
	all, err := s.allReceipts()
	if err != nil {
		return VerifyResult{}, err
	}

	byJob := make(map[string][]Receipt)
	for _, r := range all {
		byJob[r.JobID] = append(byJob[r.JobID], r)
	}
	for _, job := range byJob {
		result, err := s.chain.verifySequence(job)
		if err != nil {
			return VerifyResult{}, err
		}
		if !result.Valid {
			return result, nil
		}
	}
	return VerifyResult{Valid: true}, nil
}

// allReceipts rereads every segment from disk in order. Simpler and safer
// than trying to keep a full in-memory mirror consistent with rotation;
// only the tail index is cached.
func (s *FileStore) allReceipts() ([]Receipt, error) {
	s.mu.Lock()
	lastSegment := s.activeSegment
	s.mu.Unlock()

	var out []Receipt
	for n := 0; n <= lastSegment; n++ {
		path := s.segmentPath(n)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("receipts: failed to open segment %d: %w", n, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			var r Receipt
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				f.Close()
				return nil, fmt.Errorf("receipts: corrupt segment %d: %w", n, err)
			}
			out = append(out, r)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("receipts: failed scanning segment %d: %w", n, err)
		}
	}
	return out, nil
}
