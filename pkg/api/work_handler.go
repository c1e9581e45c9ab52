package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/weftlabs/substrate/pkg/auth"
	"github.com/weftlabs/substrate/pkg/contracts"
	"github.com/weftlabs/substrate/pkg/executor"
	"github.com/weftlabs/substrate/pkg/governance"
	"github.com/weftlabs/substrate/pkg/proposals"
)

type workRequest struct {
	EntryPoint   string                `json:"entry_point"`
	ProposalKind string                `json:"proposal_kind"`
	Ops          []contracts.Operation `json:"ops"`
	Origin       string                `json:"origin,omitempty"`
	Confidence   *float64              `json:"confidence,omitempty"`
	UserOverride string                `json:"user_override,omitempty"`
	BlastRadius  string                `json:"blast_radius,omitempty"`
	Provenance   []string              `json:"provenance,omitempty"`
}

// handleWork is the single governed mutation entry point. The resolved
// workspace policy decides whether the operations execute immediately or
// become a proposal awaiting review.
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req workRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	ep := governance.EntryPoint(req.EntryPoint)
	if !governance.KnownEntryPoint(ep) {
		WriteBadRequest(w, "Unknown entry point: "+req.EntryPoint)
		return
	}

	basketID := r.PathValue("id")
	workspaceID := principal.GetWorkspaceID()
	flags, _ := s.resolver.Resolve(r.Context(), workspaceID)

	origin := req.Origin
	if origin == "" {
		origin = string(contracts.OriginHuman)
	}

	// A configured hybrid guard can grant the auto-execution override that
	// the client did not claim itself.
	userOverride := req.UserOverride
	if userOverride == "" && s.advisor != nil && flags.HybridRule != "" && req.Confidence != nil {
		allowed, err := s.advisor.Evaluate(flags.HybridRule, governance.AdvisorInput{
			EntryPoint:  ep,
			Confidence:  *req.Confidence,
			Origin:      origin,
			BlastRadius: governance.BlastRadius(req.BlastRadius),
		})
		if err != nil {
			s.logger.Warn("hybrid rule evaluation failed", "workspace_id", workspaceID, "error", err)
		} else if allowed {
			userOverride = governance.OverrideAllowAuto
		}
	}

	// Under validator_required, an up-front validation run is the only way
	// to auto-execute. Validator failures fall through with no report and
	// the router fails closed to the proposal path.
	var validated *float64
	if flags.ValidatorRequired && s.validator != nil {
		draft := &contracts.Proposal{
			BasketID:    basketID,
			WorkspaceID: workspaceID,
			Kind:        contracts.ProposalKind(req.ProposalKind),
			Origin:      contracts.Origin(origin),
			Ops:         req.Ops,
		}
		if report, err := s.validator.Validate(r.Context(), draft); err != nil {
			s.logger.Warn("validator unavailable on work request", "basket_id", basketID, "error", err)
		} else {
			validated = &report.Confidence
		}
	}

	mode := governance.Route(ep, flags, req.Confidence, userOverride, validated)
	if mode == governance.ModeDirect {
		result, err := s.manager.ExecuteDirect(r.Context(), basketID, req.Ops, principal.GetID())
		if err != nil {
			var execErr *executor.ExecutionError
			switch {
			case errors.Is(err, executor.ErrEmptyBatch), errors.Is(err, executor.ErrUnknownOperation):
				WriteBadRequest(w, err.Error())
			case errors.As(err, &execErr):
				WriteError(w, http.StatusInternalServerError, "Execution failed: "+execErr.Reason)
			default:
				s.logger.Error("direct execution failed", "basket_id", basketID, "error", err)
				WriteInternal(w)
			}
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success":             true,
			"execution_mode":      governance.ModeDirect,
			"commit_id":           result.CommitID,
			"operations_executed": result.OperationsExecuted,
		})
		return
	}

	confidence := 0.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	p, err := s.manager.Create(r.Context(), proposals.CreateRequest{
		BasketID:    basketID,
		WorkspaceID: workspaceID,
		Kind:        contracts.ProposalKind(req.ProposalKind),
		Ops:         req.Ops,
		Origin:      contracts.Origin(origin),
		Confidence:  confidence,
		BlastRadius: governance.BlastRadius(req.BlastRadius),
		ActorID:     principal.GetID(),
		Provenance:  req.Provenance,
	})
	if err != nil {
		if errors.Is(err, proposals.ErrInvalidOperations) {
			WriteBadRequest(w, err.Error())
			return
		}
		s.logger.Error("proposal creation failed", "basket_id", basketID, "error", err)
		WriteInternal(w)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"execution_mode": governance.ModeProposal,
		"proposal_id":    p.ID,
		"status":         p.Status,
	})
}
