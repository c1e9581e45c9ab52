package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/weftlabs/substrate/pkg/auth"
	"github.com/weftlabs/substrate/pkg/governance"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	workspaceID := r.PathValue("id")
	if workspaceID != principal.GetWorkspaceID() {
		WriteForbidden(w, "Workspace access denied")
		return
	}
	flags, source := s.resolver.Resolve(r.Context(), workspaceID)

	WriteJSON(w, http.StatusOK, map[string]any{
		"settings": flags,
		"source":   source,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	workspaceID := r.PathValue("id")
	if workspaceID != principal.GetWorkspaceID() {
		WriteForbidden(w, "Workspace access denied")
		return
	}
	if !principal.IsAdmin() {
		WriteForbidden(w, "Changing governance settings requires the admin role")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var record governance.WorkspaceSettings
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	record.WorkspaceID = workspaceID
	record.UpdatedAt = time.Now().UTC()

	if err := record.Validate(); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if err := s.settings.Put(r.Context(), &record); err != nil {
		s.logger.Error("store settings failed", "workspace_id", workspaceID, "error", err)
		WriteInternal(w)
		return
	}

	flags, source := s.resolver.Resolve(r.Context(), workspaceID)
	WriteJSON(w, http.StatusOK, map[string]any{
		"settings": flags,
		"source":   source,
	})
}
