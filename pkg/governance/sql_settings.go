package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLSettingsStore implements SettingsStore using database/sql.
// It works against both Postgres and SQLite via standard drivers.
type SQLSettingsStore struct {
	db *sql.DB
}

func NewSQLSettingsStore(db *sql.DB) *SQLSettingsStore {
	return &SQLSettingsStore{db: db}
}

const settingsSchema = `
CREATE TABLE IF NOT EXISTS workspace_governance_settings (
	workspace_id TEXT PRIMARY KEY,
	governance_enabled BOOLEAN,
	validator_required BOOLEAN,
	direct_substrate_writes BOOLEAN,
	governance_ui_enabled BOOLEAN,
	cascade_events_enabled BOOLEAN,
	entry_point_policies TEXT,
	default_blast_radius TEXT,
	hybrid_rule TEXT,
	updated_at TIMESTAMP NOT NULL
);
`

func (s *SQLSettingsStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, settingsSchema)
	return err
}

func (s *SQLSettingsStore) Get(ctx context.Context, workspaceID string) (*WorkspaceSettings, error) {
	query := `
		SELECT workspace_id, governance_enabled, validator_required,
		       direct_substrate_writes, governance_ui_enabled, cascade_events_enabled,
		       entry_point_policies, default_blast_radius, hybrid_rule, updated_at
		FROM workspace_governance_settings WHERE workspace_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, workspaceID)

	var (
		out      WorkspaceSettings
		policies sql.NullString
		radius   sql.NullString
		rule     sql.NullString
	)
	err := row.Scan(&out.WorkspaceID, &out.GovernanceEnabled, &out.ValidatorRequired,
		&out.DirectSubstrateWrites, &out.GovernanceUIEnabled, &out.CascadeEventsEnabled,
		&policies, &radius, &rule, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("read governance settings: %w", err)
	}

	if policies.Valid && policies.String != "" {
		out.EntryPointPolicies = make(map[EntryPoint]Policy)
		if err := json.Unmarshal([]byte(policies.String), &out.EntryPointPolicies); err != nil {
			return nil, fmt.Errorf("decode entry point policies: %w", err)
		}
	}
	if radius.Valid && radius.String != "" {
		b := BlastRadius(radius.String)
		out.DefaultBlastRadius = &b
	}
	if rule.Valid {
		out.HybridRule = &rule.String
	}
	return &out, nil
}

func (s *SQLSettingsStore) Put(ctx context.Context, settings *WorkspaceSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	var policies any
	if len(settings.EntryPointPolicies) > 0 {
		encoded, err := json.Marshal(settings.EntryPointPolicies)
		if err != nil {
			return fmt.Errorf("encode entry point policies: %w", err)
		}
		policies = string(encoded)
	}
	var radius any
	if settings.DefaultBlastRadius != nil {
		radius = string(*settings.DefaultBlastRadius)
	}
	var rule any
	if settings.HybridRule != nil {
		rule = *settings.HybridRule
	}

	query := `
		INSERT INTO workspace_governance_settings (
			workspace_id, governance_enabled, validator_required,
			direct_substrate_writes, governance_ui_enabled, cascade_events_enabled,
			entry_point_policies, default_blast_radius, hybrid_rule, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (workspace_id) DO UPDATE SET
			governance_enabled = EXCLUDED.governance_enabled,
			validator_required = EXCLUDED.validator_required,
			direct_substrate_writes = EXCLUDED.direct_substrate_writes,
			governance_ui_enabled = EXCLUDED.governance_ui_enabled,
			cascade_events_enabled = EXCLUDED.cascade_events_enabled,
			entry_point_policies = EXCLUDED.entry_point_policies,
			default_blast_radius = EXCLUDED.default_blast_radius,
			hybrid_rule = EXCLUDED.hybrid_rule,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		settings.WorkspaceID, settings.GovernanceEnabled, settings.ValidatorRequired,
		settings.DirectSubstrateWrites, settings.GovernanceUIEnabled, settings.CascadeEventsEnabled,
		policies, radius, rule, time.Now().UTC(),
	)
	return err
}

// MemorySettingsStore is an in-memory SettingsStore for tests and
// single-node setups.
type MemorySettingsStore struct {
	mu   sync.RWMutex
	rows map[string]*WorkspaceSettings
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{rows: make(map[string]*WorkspaceSettings)}
}

func (s *MemorySettingsStore) Get(_ context.Context, workspaceID string) (*WorkspaceSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[workspaceID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *MemorySettingsStore) Put(_ context.Context, settings *WorkspaceSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *settings
	copied.UpdatedAt = time.Now().UTC()
	s.rows[settings.WorkspaceID] = &copied
	return nil
}
