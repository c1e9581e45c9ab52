package governance

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Settings source labels reported by Resolve.
const (
	SourceWorkspace = "workspace_database"
	SourceEnv       = "environment_defaults"
)

// ErrSettingsNotFound is returned by a SettingsStore when no row exists for
// the workspace. The resolver treats it as "use environment defaults".
var ErrSettingsNotFound = errors.New("governance settings not found")

// WorkspaceSettings is the stored per-workspace override record. Nil fields
// mean "not set here, fall through to the next layer".
type WorkspaceSettings struct {
	WorkspaceID           string                `json:"workspace_id"`
	GovernanceEnabled     *bool                 `json:"governance_enabled,omitempty"`
	ValidatorRequired     *bool                 `json:"validator_required,omitempty"`
	DirectSubstrateWrites *bool                 `json:"direct_substrate_writes,omitempty"`
	GovernanceUIEnabled   *bool                 `json:"governance_ui_enabled,omitempty"`
	CascadeEventsEnabled  *bool                 `json:"cascade_events_enabled,omitempty"`
	EntryPointPolicies    map[EntryPoint]Policy `json:"entry_point_policies,omitempty"`
	DefaultBlastRadius    *BlastRadius          `json:"default_blast_radius,omitempty"`
	HybridRule            *string               `json:"hybrid_rule,omitempty"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// Validate rejects unrecognized enum values before the record is persisted.
func (s *WorkspaceSettings) Validate() error {
	for ep, p := range s.EntryPointPolicies {
		if !KnownEntryPoint(ep) {
			return errors.New("invalid entry point " + string(ep))
		}
		if !KnownPolicy(p) {
			return errors.New("invalid policy " + string(p) + " for entry point " + string(ep))
		}
	}
	if s.DefaultBlastRadius != nil && !KnownBlastRadius(*s.DefaultBlastRadius) {
		return errors.New("invalid blast radius " + string(*s.DefaultBlastRadius))
	}
	return nil
}

// SettingsStore reads and writes per-workspace settings records.
type SettingsStore interface {
	Get(ctx context.Context, workspaceID string) (*WorkspaceSettings, error)
	Put(ctx context.Context, settings *WorkspaceSettings) error
}

// Resolver merges workspace-stored policy with environment defaults into one
// GovernanceFlags value. Resolution always succeeds with a fully-populated
// struct; store failures degrade to environment defaults and are logged.
type Resolver struct {
	store  SettingsStore
	lookup func(string) (string, bool)
	logger *slog.Logger
	base   *GovernanceFlags
}

// NewResolver creates a resolver. store may be nil (environment-only mode).
func NewResolver(store SettingsStore, lookup func(string) (string, bool), logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, lookup: lookup, logger: logger}
}

// WithBase replaces the hardcoded-defaults layer, typically with flags from
// a loaded governance profile. Environment values and workspace rows still
// override it.
func (r *Resolver) WithBase(base GovernanceFlags) *Resolver {
	r.base = &base
	return r
}

func cloneFlags(flags GovernanceFlags) GovernanceFlags {
	policies := make(map[EntryPoint]Policy, len(flags.EntryPointPolicies))
	for ep, p := range flags.EntryPointPolicies {
		policies[ep] = p
	}
	flags.EntryPointPolicies = policies
	return flags
}

// Resolve returns the effective flags for a workspace along with the winning
// source label.
func (r *Resolver) Resolve(ctx context.Context, workspaceID string) (GovernanceFlags, string) {
	var flags GovernanceFlags
	if r.base != nil {
		flags = cloneFlags(*r.base)
	} else {
		flags = HardcodedDefaults()
	}
	flags = overlayEnv(flags, r.lookup)

	if r.store == nil {
		return flags, SourceEnv
	}

	row, err := r.store.Get(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, ErrSettingsNotFound) {
			r.logger.Warn("governance settings read failed, using environment defaults",
				"workspace_id", workspaceID, "error", err)
		}
		return flags, SourceEnv
	}

	if row.GovernanceEnabled != nil {
		flags.GovernanceEnabled = *row.GovernanceEnabled
	}
	if row.ValidatorRequired != nil {
		flags.ValidatorRequired = *row.ValidatorRequired
	}
	if row.DirectSubstrateWrites != nil {
		flags.DirectSubstrateWrites = *row.DirectSubstrateWrites
	}
	if row.GovernanceUIEnabled != nil {
		flags.GovernanceUIEnabled = *row.GovernanceUIEnabled
	}
	if row.CascadeEventsEnabled != nil {
		flags.CascadeEventsEnabled = *row.CascadeEventsEnabled
	}
	for ep, p := range row.EntryPointPolicies {
		if KnownPolicy(p) {
			flags.EntryPointPolicies[ep] = p
		}
	}
	if row.DefaultBlastRadius != nil && KnownBlastRadius(*row.DefaultBlastRadius) {
		flags.DefaultBlastRadius = *row.DefaultBlastRadius
	}
	if row.HybridRule != nil {
		flags.HybridRule = *row.HybridRule
	}
	return flags, SourceWorkspace
}
