package contracts

import "time"

// ProposalKind defines the category of substrate change being proposed.
type ProposalKind string

// ProposalKind constants.
const (
	KindExtraction     ProposalKind = "Extraction"
	KindEdit           ProposalKind = "Edit"
	KindMerge          ProposalKind = "Merge"
	KindArchive        ProposalKind = "Archive"
	KindScopePromotion ProposalKind = "ScopePromotion"
)

// KnownKind reports whether k is a recognized proposal kind.
func KnownKind(k ProposalKind) bool {
	switch k {
	case KindExtraction, KindEdit, KindMerge, KindArchive, KindScopePromotion:
		return true
	}
	return false
}

// ProposalStatus defines the review lifecycle of a proposal.
// Status only ever moves PROPOSED -> APPROVED or PROPOSED -> REJECTED.
type ProposalStatus string

// Status constants.
const (
	StatusProposed ProposalStatus = "PROPOSED"
	StatusApproved ProposalStatus = "APPROVED"
	StatusRejected ProposalStatus = "REJECTED"
)

// Origin identifies what produced a proposal or timeline event.
type Origin string

// Origin constants.
const (
	OriginHuman  Origin = "human"
	OriginAgent  Origin = "agent"
	OriginUser   Origin = "user"
	OriginSystem Origin = "system"
)

// OperationType is the closed set of substrate mutations the execution
// engine knows how to apply. Adding a type means adding a handler and a
// payload schema; unknown types abort a batch before any mutation.
type OperationType string

// Operation type constants.
const (
	OpCreateBlock       OperationType = "CreateBlock"
	OpReviseBlock       OperationType = "ReviseBlock"
	OpArchiveBlock      OperationType = "ArchiveBlock"
	OpCreateContextItem OperationType = "CreateContextItem"
	OpEditContextItem   OperationType = "EditContextItem"
	OpCreateRawDump     OperationType = "CreateRawDump"
)

// Operation is a single substrate mutation. Immutable once attached to a
// proposal.
type Operation struct {
	Type OperationType  `json:"type"`
	Data map[string]any `json:"data"`
}

// ValidatorReport carries the confidence scoring attached by the validator
// collaborator. Confidence is in [0,1].
type ValidatorReport struct {
	Confidence    float64 `json:"confidence"`
	ImpactSummary string  `json:"impact_summary"`
}

// Proposal is the reviewable envelope for a batch of substrate operations.
//
// IsExecuted is a one-way latch orthogonal to Status: it transitions
// false -> true exactly once, only as a consequence of a successful approve,
// and is checked independently of Status on every mutating call. A proposal
// with IsExecuted set can never be rejected, whatever its Status says.
type Proposal struct {
	ID          string         `json:"id"`
	BasketID    string         `json:"basket_id"`
	WorkspaceID string         `json:"workspace_id"`

	Kind   ProposalKind   `json:"proposal_kind"`
	Origin Origin         `json:"origin"`
	Status ProposalStatus `json:"status"`

	Ops []Operation `json:"ops"`

	ValidatorReport *ValidatorReport `json:"validator_report,omitempty"`
	Confidence      float64          `json:"confidence"`
	BlastRadius     string           `json:"blast_radius"`

	IsExecuted bool      `json:"is_executed"`
	CreatedAt  time.Time `json:"created_at"`

	Provenance []string `json:"provenance,omitempty"`
}

// ExecutionResult correlates a successful atomic execution of a proposal's
// operations.
type ExecutionResult struct {
	CommitID           string `json:"commit_id"`
	OperationsExecuted int    `json:"operations_executed"`
}
