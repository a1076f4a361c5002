package contracts

import "time"

// Stage identifies the pipeline step that produced an audit record.
type Stage string

const (
	StagePostReceived Stage = "post_received"
	StageFilter       Stage = "filter"
	StageSignal       Stage = "signal"
	StageAdmission    Stage = "admission"
	StageOrder        Stage = "order"
)

// Verdict is the outcome of a pipeline stage.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictReject Verdict = "reject"
	VerdictError  Verdict = "error"
)

// AuditRecord is one append-only entry in the pipeline audit trail.
// Every stage transition is recorded, including rejections, with enough
// fields to reconstruct the decision after the fact. Write-once.
type AuditRecord struct {
	ID        int64     `json:"id"`
	PostID    string    `json:"post_id"`
	Stage     Stage     `json:"stage"`
	Verdict   Verdict   `json:"verdict"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAuditRecord builds a record stamped with the current time.
func NewAuditRecord(postID string, stage Stage, verdict Verdict, reason string) *AuditRecord {
	return &AuditRecord{
		PostID:    postID,
		Stage:     stage,
		Verdict:   verdict,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}
