package proposals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/substrate/pkg/contracts"
	"github.com/weftlabs/substrate/pkg/executor"
	"github.com/weftlabs/substrate/pkg/governance"
	"github.com/weftlabs/substrate/pkg/substrate"
	"github.com/weftlabs/substrate/pkg/timeline"
)

// Manager drives the proposal state machine and the direct-write path. All
// dependencies are injected; there is no package-level client anywhere in
// the pipeline.
type Manager struct {
	store   Store
	engine  *executor.Engine
	runner  substrate.TxRunner
	emitter *timeline.Emitter
	logger  *slog.Logger
}

// NewManager creates a manager.
func NewManager(store Store, engine *executor.Engine, runner substrate.TxRunner, emitter *timeline.Emitter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, engine: engine, runner: runner, emitter: emitter, logger: logger}
}

// CreateRequest is a work request routed to the proposal path.
type CreateRequest struct {
	BasketID    string
	WorkspaceID string
	Kind        contracts.ProposalKind
	Ops         []contracts.Operation
	Origin      contracts.Origin
	Confidence  float64
	BlastRadius governance.BlastRadius
	ActorID     string
	Provenance  []string
}

// Create validates and persists a new proposal in state PROPOSED.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*contracts.Proposal, error) {
	if !contracts.KnownKind(req.Kind) {
		return nil, fmt.Errorf("%w: unknown proposal kind %q", ErrInvalidOperations, req.Kind)
	}
	if err := m.engine.ValidateOps(req.Ops); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperations, err)
	}

	origin := req.Origin
	if origin == "" {
		origin = contracts.OriginHuman
	}
	radius := req.BlastRadius
	if radius == "" {
		radius = governance.BlastScoped
	}

	p := &contracts.Proposal{
		ID:          uuid.New().String(),
		BasketID:    req.BasketID,
		WorkspaceID: req.WorkspaceID,
		Kind:        req.Kind,
		Origin:      origin,
		Status:      contracts.StatusProposed,
		Ops:         req.Ops,
		Confidence:  req.Confidence,
		BlastRadius: string(radius),
		IsExecuted:  false,
		CreatedAt:   time.Now().UTC(),
		Provenance:  req.Provenance,
	}
	if err := m.store.Create(ctx, p); err != nil {
		return nil, err
	}

	_ = m.emitter.Emit(ctx, contracts.TimelineEvent{
		BasketID: p.BasketID,
		Kind:     contracts.EventProposalSubmitted,
		RefID:    p.ID,
		Payload: map[string]any{
			"proposal_kind": string(p.Kind),
			"ops_summary":   OpsSummary(p.Ops),
			"blast_radius":  p.BlastRadius,
		},
		ActorID: req.ActorID,
		Origin:  originOf(p.Origin),
	})
	return p, nil
}

// load fetches a proposal, hiding rows outside the caller's workspace. A
// cross-workspace id is indistinguishable from an absent one.
func (m *Manager) load(ctx context.Context, workspaceID, id string) (*contracts.Proposal, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.WorkspaceID != workspaceID {
		return nil, ErrNotFound
	}
	return p, nil
}

// Approve claims and executes a proposal in the caller's workspace. At most
// one of any number of racing calls executes; the rest observe
// ErrAlreadyExecuted.
func (m *Manager) Approve(ctx context.Context, workspaceID, id, actorID string) (*contracts.ExecutionResult, error) {
	p, err := m.load(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	// Serialize against other executions touching the same basket for the
	// whole claim-and-apply transaction.
	unlock := m.engine.LockBasket(p.BasketID)
	defer unlock()

	result, events, err := m.store.Execute(ctx, id, func(tx substrate.Tx, claimed *contracts.Proposal) (*contracts.ExecutionResult, []contracts.TimelineEvent, error) {
		return m.engine.Execute(ctx, tx, claimed.BasketID, claimed.Ops)
	})
	if err != nil {
		return nil, err
	}

	// The transaction has committed; only now do audit events exist.
	_ = m.emitter.Emit(ctx, contracts.TimelineEvent{
		BasketID: p.BasketID,
		Kind:     contracts.EventProposalApproved,
		RefID:    p.ID,
		Payload: map[string]any{
			"commit_id":           result.CommitID,
			"operations_executed": result.OperationsExecuted,
		},
		ActorID: actorID,
		Origin:  contracts.OriginUser,
	})
	m.emitter.EmitAll(ctx, events)

	return result, nil
}

// Reject moves a pending proposal in the caller's workspace to REJECTED.
// Executed proposals are unrejectable regardless of status.
func (m *Manager) Reject(ctx context.Context, workspaceID, id, reason, actorID string) error {
	p, err := m.load(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if err := m.store.Reject(ctx, id, reason); err != nil {
		return err
	}

	_ = m.emitter.Emit(ctx, contracts.TimelineEvent{
		BasketID: p.BasketID,
		Kind:     contracts.EventProposalRejected,
		RefID:    p.ID,
		Payload:  map[string]any{"reason": reason},
		ActorID:  actorID,
		Origin:   contracts.OriginUser,
	})
	return nil
}

// Get returns one proposal in the caller's workspace.
func (m *Manager) Get(ctx context.Context, workspaceID, id string) (*contracts.Proposal, error) {
	return m.load(ctx, workspaceID, id)
}

// List returns a workspace's proposals, newest first.
func (m *Manager) List(ctx context.Context, workspaceID string, filter ListFilter) ([]*contracts.Proposal, error) {
	return m.store.List(ctx, workspaceID, filter)
}

// AttachValidatorReport records validator output on a pending proposal in the
// caller's workspace.
func (m *Manager) AttachValidatorReport(ctx context.Context, workspaceID, id string, report *contracts.ValidatorReport) error {
	if _, err := m.load(ctx, workspaceID, id); err != nil {
		return err
	}
	return m.store.AttachValidatorReport(ctx, id, report)
}

// ExecuteDirect applies ops immediately, bypassing review. Used when the
// policy router resolves a work request to direct mode; the same atomicity
// and audit rules apply as for an approved proposal.
func (m *Manager) ExecuteDirect(ctx context.Context, basketID string, ops []contracts.Operation, actorID string) (*contracts.ExecutionResult, error) {
	unlock := m.engine.LockBasket(basketID)
	defer unlock()

	var (
		result *contracts.ExecutionResult
		events []contracts.TimelineEvent
	)
	err := m.runner.RunInTx(ctx, func(tx substrate.Tx) error {
		var applyErr error
		result, events, applyErr = m.engine.Execute(ctx, tx, basketID, ops)
		return applyErr
	})
	if err != nil {
		return nil, err
	}

	for i := range events {
		events[i].ActorID = actorID
	}
	m.emitter.EmitAll(ctx, events)
	return result, nil
}

// OpsSummary renders a human-readable operation type list for display,
// e.g. "CreateBlock x2, CreateContextItem".
func OpsSummary(ops []contracts.Operation) string {
	counts := make(map[contracts.OperationType]int)
	order := make([]contracts.OperationType, 0, len(ops))
	for _, op := range ops {
		if counts[op.Type] == 0 {
			order = append(order, op.Type)
		}
		counts[op.Type]++
	}
	parts := make([]string, 0, len(order))
	for _, t := range order {
		if counts[t] > 1 {
			parts = append(parts, fmt.Sprintf("%s x%d", t, counts[t]))
		} else {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ", ")
}

func originOf(o contracts.Origin) contracts.Origin {
	if o == contracts.OriginAgent {
		return contracts.OriginAgent
	}
	return contracts.OriginUser
}
