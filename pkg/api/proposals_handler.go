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
	"github.com/weftlabs/substrate/pkg/validator"
)

type createProposalRequest struct {
	ProposalKind string                `json:"proposal_kind"`
	Ops          []contracts.Operation `json:"ops"`
	Origin       string                `json:"origin,omitempty"`
	Confidence   float64               `json:"confidence,omitempty"`
	BlastRadius  string                `json:"blast_radius,omitempty"`
	Provenance   []string              `json:"provenance,omitempty"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.BlastRadius != "" && !governance.KnownBlastRadius(governance.BlastRadius(req.BlastRadius)) {
		WriteBadRequest(w, "Unknown blast radius: "+req.BlastRadius)
		return
	}

	p, err := s.manager.Create(r.Context(), proposals.CreateRequest{
		BasketID:    r.PathValue("id"),
		WorkspaceID: principal.GetWorkspaceID(),
		Kind:        contracts.ProposalKind(req.ProposalKind),
		Ops:         req.Ops,
		Origin:      contracts.Origin(req.Origin),
		Confidence:  req.Confidence,
		BlastRadius: governance.BlastRadius(req.BlastRadius),
		ActorID:     principal.GetID(),
		Provenance:  req.Provenance,
	})
	if err != nil {
		if errors.Is(err, proposals.ErrInvalidOperations) {
			WriteBadRequest(w, err.Error())
			return
		}
		s.logger.Error("create proposal failed", "error", err)
		WriteInternal(w)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"proposal_id": p.ID,
		"status":      p.Status,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	result, err := s.manager.Approve(r.Context(), principal.GetWorkspaceID(), r.PathValue("id"), principal.GetID())
	if err != nil {
		var execErr *executor.ExecutionError
		switch {
		case errors.Is(err, proposals.ErrNotFound):
			WriteNotFound(w, "Proposal not found")
		case errors.Is(err, proposals.ErrAlreadyExecuted):
			WriteBadRequest(w, "Proposal already executed")
		case errors.Is(err, proposals.ErrInvalidState):
			WriteBadRequest(w, "Proposal is not awaiting review")
		case errors.As(err, &execErr):
			// Execution rolled back; the proposal remains approvable.
			WriteError(w, http.StatusInternalServerError, "Execution failed: "+execErr.Reason)
		default:
			s.logger.Error("approve failed", "proposal_id", r.PathValue("id"), "error", err)
			WriteInternal(w)
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"commit_id":           result.CommitID,
		"operations_executed": result.OperationsExecuted,
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err = s.manager.Reject(r.Context(), principal.GetWorkspaceID(), r.PathValue("id"), req.Reason, principal.GetID())
	if err != nil {
		switch {
		case errors.Is(err, proposals.ErrNotFound):
			WriteNotFound(w, "Proposal not found")
		case errors.Is(err, proposals.ErrRejectExecuted):
			WriteBadRequest(w, "Cannot reject executed proposal")
		case errors.Is(err, proposals.ErrInvalidState):
			WriteBadRequest(w, "Proposal is not awaiting review")
		default:
			s.logger.Error("reject failed", "proposal_id", r.PathValue("id"), "error", err)
			WriteInternal(w)
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  contracts.StatusRejected,
	})
}

// proposalItem is a list entry enriched with a derived operations summary.
type proposalItem struct {
	*contracts.Proposal
	OpsSummary string `json:"ops_summary"`
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	flags, _ := s.resolver.Resolve(r.Context(), principal.GetWorkspaceID())
	if !flags.GovernanceEnabled {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"governance_status": "disabled",
		})
		return
	}

	filter := proposals.ListFilter{
		BasketID: r.PathValue("id"),
		Status:   contracts.ProposalStatus(r.URL.Query().Get("status")),
	}
	list, err := s.manager.List(r.Context(), principal.GetWorkspaceID(), filter)
	if err != nil {
		s.logger.Error("list proposals failed", "error", err)
		WriteInternal(w)
		return
	}

	items := make([]proposalItem, 0, len(list))
	for _, p := range list {
		items = append(items, proposalItem{Proposal: p, OpsSummary: proposals.OpsSummary(p.Ops)})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleValidate runs the external validator against a pending proposal and
// attaches the resulting report.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if s.validator == nil {
		WriteError(w, http.StatusServiceUnavailable, "Validator not configured")
		return
	}

	id := r.PathValue("id")
	p, err := s.manager.Get(r.Context(), principal.GetWorkspaceID(), id)
	if err != nil {
		if errors.Is(err, proposals.ErrNotFound) {
			WriteNotFound(w, "Proposal not found")
			return
		}
		WriteInternal(w)
		return
	}

	report, err := s.validator.Validate(r.Context(), p)
	if err != nil {
		if errors.Is(err, validator.ErrUnavailable) {
			WriteError(w, http.StatusServiceUnavailable, "Validator unavailable")
			return
		}
		WriteBadRequest(w, err.Error())
		return
	}

	if err := s.manager.AttachValidatorReport(r.Context(), principal.GetWorkspaceID(), id, report); err != nil {
		if errors.Is(err, proposals.ErrNotFound) {
			WriteBadRequest(w, "Proposal is no longer awaiting review")
			return
		}
		WriteInternal(w)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"validator_report": report,
	})
}
