// Package proposals owns the proposal lifecycle: PROPOSED -> APPROVED or
// REJECTED, with is_executed as a one-way latch orthogonal to status.
// Approval claims the latch and applies the operation batch inside the same
// atomic unit, so two racing approvals resolve to exactly one execution.
package proposals

import (
	"context"
	"errors"

	"github.com/weftlabs/substrate/pkg/contracts"
	"github.com/weftlabs/substrate/pkg/substrate"
)

var (
	ErrNotFound          = errors.New("proposal not found")
	ErrAlreadyExecuted   = errors.New("proposal already executed")
	ErrInvalidState      = errors.New("proposal is not in PROPOSED state")
	ErrInvalidOperations = errors.New("invalid operations")
	// ErrRejectExecuted is checked against is_executed alone, never status:
	// a proposal that ran can not be rejected whatever its status says.
	ErrRejectExecuted = errors.New("Cannot reject executed proposal")
)

// ApplyFunc applies a claimed proposal's operations inside the claim's
// transaction. Returned events are emitted by the caller only after commit.
type ApplyFunc func(tx substrate.Tx, p *contracts.Proposal) (*contracts.ExecutionResult, []contracts.TimelineEvent, error)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	BasketID string
	Status   contracts.ProposalStatus
}

// Store persists proposals and enforces the lifecycle transitions.
type Store interface {
	Create(ctx context.Context, p *contracts.Proposal) error
	Get(ctx context.Context, id string) (*contracts.Proposal, error)
	List(ctx context.Context, workspaceID string, filter ListFilter) ([]*contracts.Proposal, error)

	// Execute atomically claims the is_executed latch (compare-and-swap on
	// is_executed = false, status = PROPOSED), runs apply in the same unit,
	// and marks the proposal APPROVED. A losing racer gets
	// ErrAlreadyExecuted; an apply failure rolls everything back and leaves
	// the proposal retryable.
	Execute(ctx context.Context, id string, apply ApplyFunc) (*contracts.ExecutionResult, []contracts.TimelineEvent, error)

	// Reject moves PROPOSED -> REJECTED. is_executed is checked first and
	// independently of status.
	Reject(ctx context.Context, id, reason string) error

	// AttachValidatorReport records the validator's confidence scoring on a
	// still-pending proposal.
	AttachValidatorReport(ctx context.Context, id string, report *contracts.ValidatorReport) error
}
