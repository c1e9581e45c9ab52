package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/weftlabs/substrate/pkg/timeline"
)

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := timeline.Query{
		Limit: timeline.DefaultPageLimit,
		Kinds: r.URL.Query()["event_type"],
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err := timeline.DecodeCursor(raw)
		if err != nil {
			if errors.Is(err, timeline.ErrBadCursor) {
				WriteBadRequest(w, "Malformed cursor")
				return
			}
			WriteInternal(w)
			return
		}
		q.Cursor = &cursor
	}

	page, err := s.timeline.List(r.Context(), r.PathValue("id"), q)
	if err != nil {
		s.logger.Error("timeline list failed", "basket_id", r.PathValue("id"), "error", err)
		WriteInternal(w)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"events":      page.Events,
		"has_more":    page.HasMore,
		"next_cursor": page.NextCursor,
		"last_cursor": page.LastCursor,
	})
}
