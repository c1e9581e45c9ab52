// Package governance decides, per call site, whether a substrate change
// applies directly or must pass through human review. It resolves workspace
// policy into a single GovernanceFlags value and routes work requests to an
// execution mode. Resolution and routing never fail; malformed input is
// absorbed by fail-safe defaults.
package governance

// EntryPoint names the call site whose policy determines routing.
type EntryPoint string

// Entry point constants.
const (
	EntryOnboardingDump       EntryPoint = "onboarding_dump"
	EntryManualEdit           EntryPoint = "manual_edit"
	EntryDocumentEdit         EntryPoint = "document_edit"
	EntryReflectionSuggestion EntryPoint = "reflection_suggestion"
	EntryGraphAction          EntryPoint = "graph_action"
	EntryTimelineRestore      EntryPoint = "timeline_restore"
)

// EntryPoints lists every known entry point.
var EntryPoints = []EntryPoint{
	EntryOnboardingDump,
	EntryManualEdit,
	EntryDocumentEdit,
	EntryReflectionSuggestion,
	EntryGraphAction,
	EntryTimelineRestore,
}

// KnownEntryPoint reports whether ep is a recognized entry point.
func KnownEntryPoint(ep EntryPoint) bool {
	for _, known := range EntryPoints {
		if ep == known {
			return true
		}
	}
	return false
}

// Policy is the per-entry-point routing policy.
type Policy string

// Policy constants.
const (
	PolicyProposal Policy = "proposal"
	PolicyDirect   Policy = "direct"
	PolicyHybrid   Policy = "hybrid"
)

// KnownPolicy reports whether p is a recognized policy value.
func KnownPolicy(p Policy) bool {
	return p == PolicyProposal || p == PolicyDirect || p == PolicyHybrid
}

// BlastRadius is the declared scope-of-impact tag carried on proposals.
// Informational in this core; it must round-trip unchanged.
type BlastRadius string

// Blast radius constants.
const (
	BlastLocal  BlastRadius = "Local"
	BlastScoped BlastRadius = "Scoped"
	BlastGlobal BlastRadius = "Global"
)

// KnownBlastRadius reports whether b is a recognized blast radius value.
func KnownBlastRadius(b BlastRadius) bool {
	return b == BlastLocal || b == BlastScoped || b == BlastGlobal
}

// ExecutionMode is the routing decision for a work request.
type ExecutionMode string

// Execution mode constants.
const (
	ModeDirect   ExecutionMode = "direct"
	ModeProposal ExecutionMode = "proposal"
)

// GovernanceFlags is the fully-resolved governance policy for one workspace.
// Precedence: workspace-stored row > environment-derived defaults > hardcoded
// defaults.
type GovernanceFlags struct {
	GovernanceEnabled     bool                  `json:"governance_enabled"`
	ValidatorRequired     bool                  `json:"validator_required"`
	DirectSubstrateWrites bool                  `json:"direct_substrate_writes"`
	GovernanceUIEnabled   bool                  `json:"governance_ui_enabled"`
	CascadeEventsEnabled  bool                  `json:"cascade_events_enabled"`
	EntryPointPolicies    map[EntryPoint]Policy `json:"entry_point_policies"`
	DefaultBlastRadius    BlastRadius           `json:"default_blast_radius"`

	// HybridRule is an optional CEL guard expression consulted by the hybrid
	// advisor. Empty means no rule is configured.
	HybridRule string `json:"hybrid_rule,omitempty"`
}

// HardcodedDefaults returns the last-resort policy table used when neither
// the workspace row nor the environment supplies a value.
func HardcodedDefaults() GovernanceFlags {
	policies := make(map[EntryPoint]Policy, len(EntryPoints))
	for _, ep := range EntryPoints {
		policies[ep] = PolicyProposal
	}
	return GovernanceFlags{
		GovernanceEnabled:     false,
		ValidatorRequired:     false,
		DirectSubstrateWrites: true,
		GovernanceUIEnabled:   false,
		CascadeEventsEnabled:  true,
		EntryPointPolicies:    policies,
		DefaultBlastRadius:    BlastScoped,
	}
}
