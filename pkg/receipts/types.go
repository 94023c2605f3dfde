// Package receipts implements the append-only, hash-chained receipt store
// (spec C2) and the StageReceipt/ReceiptChain shapes the pipeline executor
// emits and returns.
package receipts

import "time"

// Stage identifies one of the five pipeline stages a receipt was emitted for.
type Stage string

const (
	StageCIFIngress Stage = "CIF_INGRESS"
	StageCDIAction  Stage = "CDI_ACTION"
	StageHandler    Stage = "HANDLER"
	StageCDIOutput  Stage = "CDI_OUTPUT"
	StageCIFEgress  Stage = "CIF_EGRESS"
)

// Stages is the canonical, ordered list of stages a complete chain carries.
var Stages = []Stage{StageCIFIngress, StageCDIAction, StageHandler, StageCDIOutput, StageCIFEgress}

// Result is the PASS/FAIL outcome recorded on a receipt.
type Result string

const (
	ResultPass Result = "PASS"
	ResultFail Result = "FAIL"
)

// StageReceipt is the immutable-after-emission record the executor appends
// to a PipelineState during a single request's execution.
type StageReceipt struct {
	ReceiptID string         `json:"receipt_id"`
	Stage     Stage          `json:"stage"`
	TraceID   string         `json:"trace_id"`
	Timestamp time.Time      `json:"timestamp"`
	Result    Result         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// hashable is the subset of StageReceipt fields covered by Hash: every
// field except Hash itself.
type hashable struct {
	ReceiptID string         `json:"receipt_id"`
	Stage     Stage          `json:"stage"`
	TraceID   string         `json:"trace_id"`
	Timestamp time.Time      `json:"timestamp"`
	Result    Result         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prev_hash"`
}

func (r StageReceipt) hashableForm() hashable {
	return hashable{
		ReceiptID: r.ReceiptID,
		Stage:     r.Stage,
		TraceID:   r.TraceID,
		Timestamp: r.Timestamp,
		Result:    r.Result,
		Details:   r.Details,
		PrevHash:  r.PrevHash,
	}
}

// ReceiptChain is returned with every pipeline response.
type ReceiptChain struct {
	TraceID   string         `json:"trace_id"`
	Receipts  []StageReceipt `json:"receipts"`
	Complete  bool           `json:"complete"`
	FinalHash string         `json:"final_hash"`
}

// Verdict is the durable log entry's allow/deny marker (distinct from the
// in-flight PASS/FAIL on StageReceipt, matching the relational wire
// format of spec §6).
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
)

// Receipt is the durable append-only log entry (spec C2 / §3 "Receipt
// (durable log entry, C2)"). JobID is always equal to the owning
// request's trace_id.
type Receipt struct {
	JobID          string    `json:"job_id"`
	Stage          Stage     `json:"stage"`
	Action         string    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
	PolicyID       string    `json:"policy_id,omitempty"`
	InputsHash     string    `json:"inputs_hash,omitempty"`
	OutputsHash    string    `json:"outputs_hash,omitempty"`
	Verdict        Verdict   `json:"verdict,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	TreatyHash     string    `json:"treaty_hash,omitempty"`
	TreatyVersion  string    `json:"treaty_version,omitempty"`
	PrevHash       string    `json:"prev_hash"`
	SequenceNumber uint64    `json:"sequence_number"`
	ChainSignature string    `json:"chain_signature"`
}
