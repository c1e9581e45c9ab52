package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func enabledFlags(policies map[EntryPoint]Policy) GovernanceFlags {
	flags := HardcodedDefaults()
	flags.GovernanceEnabled = true
	for ep, p := range policies {
		flags.EntryPointPolicies[ep] = p
	}
	return flags
}

func f64(v float64) *float64 { return &v }

func TestRoute_GovernanceDisabledAlwaysDirect(t *testing.T) {
	flags := HardcodedDefaults()
	for _, ep := range EntryPoints {
		assert.Equal(t, ModeDirect, Route(ep, flags, nil, "", nil))
	}
	// Even an explicit proposal policy is ignored while governance is off.
	flags.EntryPointPolicies[EntryManualEdit] = PolicyProposal
	assert.Equal(t, ModeDirect, Route(EntryManualEdit, flags, f64(0.1), "", nil))
}

func TestRoute_ProposalPolicyIgnoresConfidence(t *testing.T) {
	flags := enabledFlags(map[EntryPoint]Policy{EntryManualEdit: PolicyProposal})

	assert.Equal(t, ModeProposal, Route(EntryManualEdit, flags, nil, "", nil))
	assert.Equal(t, ModeProposal, Route(EntryManualEdit, flags, f64(0.99), OverrideAllowAuto, nil))
}

func TestRoute_DirectPolicy(t *testing.T) {
	flags := enabledFlags(map[EntryPoint]Policy{EntryGraphAction: PolicyDirect})
	assert.Equal(t, ModeDirect, Route(EntryGraphAction, flags, nil, "", nil))
}

func TestRoute_UnknownEntryPointDefaultsToProposal(t *testing.T) {
	flags := enabledFlags(nil)
	delete(flags.EntryPointPolicies, EntryDocumentEdit)
	assert.Equal(t, ModeProposal, Route(EntryDocumentEdit, flags, f64(1.0), OverrideAllowAuto, nil))
}

func TestRoute_Hybrid(t *testing.T) {
	flags := enabledFlags(map[EntryPoint]Policy{EntryReflectionSuggestion: PolicyHybrid})

	tests := []struct {
		name       string
		confidence *float64
		override   string
		want       ExecutionMode
	}{
		{"high confidence with override", f64(0.9), OverrideAllowAuto, ModeDirect},
		{"threshold confidence with override", f64(0.8), OverrideAllowAuto, ModeDirect},
		{"high confidence without override", f64(0.95), "", ModeProposal},
		{"low confidence with override", f64(0.5), OverrideAllowAuto, ModeProposal},
		{"absent confidence fails safe", nil, OverrideAllowAuto, ModeProposal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(EntryReflectionSuggestion, flags, tt.confidence, tt.override, nil))
		})
	}
}

func TestRoute_ValidatorRequiredForcesProposal(t *testing.T) {
	flags := enabledFlags(map[EntryPoint]Policy{EntryOnboardingDump: PolicyDirect})
	flags.ValidatorRequired = true

	// No validator report: never auto-execute.
	assert.Equal(t, ModeProposal, Route(EntryOnboardingDump, flags, f64(0.99), OverrideAllowAuto, nil))
	// Low-confidence report: still review.
	assert.Equal(t, ModeProposal, Route(EntryOnboardingDump, flags, nil, "", f64(0.5)))
	// High-confidence report satisfies the requirement.
	assert.Equal(t, ModeDirect, Route(EntryOnboardingDump, flags, nil, "", f64(0.85)))
}

func TestRoute_Deterministic(t *testing.T) {
	flags := enabledFlags(map[EntryPoint]Policy{EntryManualEdit: PolicyHybrid})
	first := Route(EntryManualEdit, flags, f64(0.81), OverrideAllowAuto, nil)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Route(EntryManualEdit, flags, f64(0.81), OverrideAllowAuto, nil))
	}
}
