package receipts

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/default-user/mathison/pkg/crypto"
	"github.com/default-user/mathison/pkg/seal"

	// Backend drivers. Callers select one via the dialect passed to
	// OpenSQLStore; both are registered so a single binary can serve either
	// MATHISON_STORE_BACKEND without a build tag.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names the relational backend a SQLStore talks to. The two chain
// identically; only DDL/driver-name/placeholder syntax differ.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore is the relational realization of Store (spec C2): an
// append-only `receipts` table with triggers rejecting UPDATE/DELETE, and
// chain_signature verified on every read (resolved Open Question: no
// trust-on-write shortcut — see SPEC_FULL.md §9).
type SQLStore struct {
	mu      sync.Mutex
	db      *sql.DB
	dialect Dialect
	chain   chainCore
}

// OpenSQLStore opens (and migrates, if empty) a relational receipt store.
// dsn is passed straight to database/sql.Open with the driver selected by
// dialect ("postgres" or "sqlite"). capabilityToken is checked against the
// process-wide storage seal (pkg/seal) before any connection is opened.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, signer crypto.ChainSigner, capabilityToken []byte) (*SQLStore, error) {
	if err := seal.Default.AssertCapability(capabilityToken); err != nil {
		return nil, err
	}

	driver := "postgres"
	if dialect == DialectSQLite {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("receipts: failed to open %s store: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("receipts: failed to connect to %s store: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect, chain: newChainCore(nil, signer)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS receipts (
	job_id          TEXT NOT NULL,
	stage           TEXT NOT NULL,
	action          TEXT NOT NULL,
	ts              TIMESTAMP NOT NULL,
	policy_id       TEXT,
	inputs_hash     TEXT,
	outputs_hash    TEXT,
	verdict         TEXT,
	reason          TEXT,
	notes           TEXT,
	treaty_hash     TEXT,
	treaty_version  TEXT,
	prev_hash       TEXT NOT NULL,
	sequence_number BIGINT NOT NULL,
	chain_signature TEXT NOT NULL,
	PRIMARY KEY (job_id, sequence_number)
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("receipts: failed to create receipts table: %w", err)
	}

	if err := s.installAppendOnlyGuard(ctx, "UPDATE"); err != nil {
		return err
	}
	return s.installAppendOnlyGuard(ctx, "DELETE")
}

// installAppendOnlyGuard installs the trigger rejecting op against the
// receipts table, in each dialect's native trigger syntax. Both produce
// the exact error text "Receipts are append-only: <OP> not allowed" so
// callers see one message regardless of backend.
func (s *SQLStore) installAppendOnlyGuard(ctx context.Context, op string) error {
	var ddl string
	switch s.dialect {
	case DialectPostgres:
		ddl = fmt.Sprintf(`
CREATE OR REPLACE FUNCTION receipts_reject_%[1]s() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'Receipts are append-only: %[1]s not allowed';
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS receipts_no_%[1]s ON receipts;
CREATE TRIGGER receipts_no_%[1]s BEFORE %[1]s ON receipts
FOR EACH ROW EXECUTE FUNCTION receipts_reject_%[1]s();`, op)
	case DialectSQLite:
		ddl = fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS receipts_no_%[1]s BEFORE %[1]s ON receipts
BEGIN
	SELECT RAISE(ABORT, 'Receipts are append-only: %[1]s not allowed');
END;`, op)
	default:
		return fmt.Errorf("receipts: unknown dialect %q", s.dialect)
	}

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("receipts: failed to install %s guard: %w", op, err)
	}
	return nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Append(ctx context.Context, jobID string, r Receipt) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.JobID = jobID
	prev, err := s.latestLocked(ctx, jobID)
	var prevPtr *Receipt
	if err == nil {
		prevPtr = &prev
	} else if err != ErrNotFound {
		return Receipt{}, err
	}

	sealed, err := s.chain.seal(r, prevPtr)
	if err != nil {
		return Receipt{}, err
	}

	insert := fmt.Sprintf(`INSERT INTO receipts
		(job_id, stage, action, ts, policy_id, inputs_hash, outputs_hash, verdict, reason, notes,
		 treaty_hash, treaty_version, prev_hash, sequence_number, chain_signature)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10),
		s.placeholder(11), s.placeholder(12), s.placeholder(13), s.placeholder(14), s.placeholder(15))

	_, err = s.db.ExecContext(ctx, insert,
		sealed.JobID, sealed.Stage, sealed.Action, sealed.Timestamp, sealed.PolicyID,
		sealed.InputsHash, sealed.OutputsHash, sealed.Verdict, sealed.Reason, sealed.Notes,
		sealed.TreatyHash, sealed.TreatyVersion, sealed.PrevHash, sealed.SequenceNumber, sealed.ChainSignature)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to insert receipt: %w", err)
	}
	return sealed, nil
}

func (s *SQLStore) QueryByJob(ctx context.Context, jobID string) ([]Receipt, error) {
	query := fmt.Sprintf(`SELECT job_id, stage, action, ts, policy_id, inputs_hash, outputs_hash,
		verdict, reason, notes, treaty_hash, treaty_version, prev_hash, sequence_number, chain_signature
		FROM receipts WHERE job_id = %s ORDER BY sequence_number ASC`, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("receipts: failed to query job: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		if err := s.verifyOne(r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Latest(ctx context.Context, jobID string) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestLocked(ctx, jobID)
}

func (s *SQLStore) latestLocked(ctx context.Context, jobID string) (Receipt, error) {
	query := fmt.Sprintf(`SELECT job_id, stage, action, ts, policy_id, inputs_hash, outputs_hash,
		verdict, reason, notes, treaty_hash, treaty_version, prev_hash, sequence_number, chain_signature
		FROM receipts WHERE job_id = %s ORDER BY sequence_number DESC LIMIT 1`, s.placeholder(1))

	row := s.db.QueryRowContext(ctx, query, jobID)
	r, err := scanReceiptRow(row)
	if err == sql.ErrNoRows {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: failed to query latest: %w", err)
	}
	if err := s.verifyOne(r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// verifyOne recomputes and checks chain_signature for a single receipt
// read off disk, per the resolved Open Question: every read re-verifies,
// no exceptions.
func (s *SQLStore) verifyOne(r Receipt) error {
	contentHash, err := s.chain.contentHash(r)
	if err != nil {
		return fmt.Errorf("receipts: failed to recompute content hash on read: %w", err)
	}
	ok, err := s.chain.signer.Verify(contentHash, r.PrevHash, r.SequenceNumber, r.ChainSignature)
	if err != nil {
		return fmt.Errorf("receipts: failed to verify chain_signature on read: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: job=%s sequence=%d", ErrChainBroken, r.JobID, r.SequenceNumber)
	}
	return nil
}

func (s *SQLStore) VerifyChain(ctx context.Context) (VerifyResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, stage, action, ts, policy_id, inputs_hash,
		outputs_hash, verdict, reason, notes, treaty_hash, treaty_version, prev_hash, sequence_number,
		chain_signature FROM receipts ORDER BY job_id ASC, sequence_number ASC`)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("receipts: failed to scan full table: %w", err)
	}
	defer rows.Close()

	byJob := make(map[string][]Receipt)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return VerifyResult{}, err
		}
		byJob[r.JobID] = append(byJob[r.JobID], r)
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, err
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

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(rows *sql.Rows) (Receipt, error) {
	return scanReceiptRow(rows)
}

func scanReceiptRow(row scanner) (Receipt, error) {
	var r Receipt
	var policyID, inputsHash, outputsHash, verdict, reason, notes, treatyHash, treatyVersion sql.NullString
	err := row.Scan(&r.JobID, &r.Stage, &r.Action, &r.Timestamp, &policyID, &inputsHash, &outputsHash,
		&verdict, &reason, &notes, &treatyHash, &treatyVersion, &r.PrevHash, &r.SequenceNumber, &r.ChainSignature)
	if err != nil {
		return Receipt{}, err
	}
	r.PolicyID = policyID.String
	r.InputsHash = inputsHash.String
	r.OutputsHash = outputsHash.String
	r.Verdict = Verdict(verdict.String)
	r.Reason = reason.String
	r.Notes = notes.String
	r.TreatyHash = treatyHash.String
	r.TreatyVersion = treatyVersion.String
	return r, nil
}
