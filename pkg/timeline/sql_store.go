package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// SQLStore implements Store using database/sql. Timestamps are persisted as
// unix nanoseconds so cursor comparisons behave identically on Postgres and
// SQLite.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const timelineSchema = `
CREATE TABLE IF NOT EXISTS timeline_events (
	id TEXT PRIMARY KEY,
	basket_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	ref_id TEXT NOT NULL DEFAULT '',
	payload TEXT,
	ts_ns BIGINT NOT NULL,
	actor_id TEXT,
	agent_type TEXT,
	origin TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_timeline_basket_order ON timeline_events (basket_id, ts_ns, id);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, timelineSchema)
	return err
}

func (s *SQLStore) Append(ctx context.Context, ev *contracts.TimelineEvent) error {
	var payload any
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		payload = string(raw)
	}
	query := `
		INSERT INTO timeline_events (id, basket_id, kind, ref_id, payload, ts_ns, actor_id, agent_type, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.BasketID, ev.Kind, ev.RefID, payload, ev.TS.UnixNano(),
		nullable(ev.ActorID), nullable(ev.AgentType), string(ev.Origin),
	)
	return err
}

func (s *SQLStore) List(ctx context.Context, basketID string, q Query) (*Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	var (
		where = []string{"basket_id = $1"}
		args  = []any{basketID}
	)
	if q.Cursor != nil {
		where = append(where, fmt.Sprintf("(ts_ns > $%d OR (ts_ns = $%d AND id > $%d))",
			len(args)+1, len(args)+1, len(args)+2))
		args = append(args, q.Cursor.TSNanos, q.Cursor.ID)
	}
	if len(q.Kinds) > 0 {
		marks := make([]string, 0, len(q.Kinds))
		for _, k := range q.Kinds {
			args = append(args, k)
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT id, basket_id, kind, ref_id, payload, ts_ns, actor_id, agent_type, origin
		FROM timeline_events
		WHERE %s
		ORDER BY ts_ns ASC, id ASC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := make([]contracts.TimelineEvent, 0, limit+1)
	for rows.Next() {
		var (
			ev        contracts.TimelineEvent
			payload   sql.NullString
			tsNanos   int64
			actorID   sql.NullString
			agentType sql.NullString
			origin    string
		)
		if err := rows.Scan(&ev.ID, &ev.BasketID, &ev.Kind, &ev.RefID, &payload, &tsNanos, &actorID, &agentType, &origin); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		ev.TS = time.Unix(0, tsNanos).UTC()
		ev.ActorID = actorID.String
		ev.AgentType = agentType.String
		ev.Origin = contracts.Origin(origin)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pageFrom(events, limit), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
