package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybridAdvisor_Evaluate(t *testing.T) {
	advisor, err := NewHybridAdvisor()
	require.NoError(t, err)

	input := AdvisorInput{
		EntryPoint:  EntryReflectionSuggestion,
		Confidence:  0.92,
		Origin:      "agent",
		BlastRadius: BlastLocal,
	}

	allowed, err := advisor.Evaluate(`confidence >= 0.9 && blast_radius == "Local"`, input)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = advisor.Evaluate(`confidence >= 0.9 && blast_radius == "Global"`, input)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHybridAdvisor_EmptyRuleNeverAllows(t *testing.T) {
	advisor, err := NewHybridAdvisor()
	require.NoError(t, err)

	allowed, err := advisor.Evaluate("", AdvisorInput{Confidence: 1.0})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHybridAdvisor_BadRule(t *testing.T) {
	advisor, err := NewHybridAdvisor()
	require.NoError(t, err)

	_, err = advisor.Evaluate(`confidence >=`, AdvisorInput{})
	assert.Error(t, err)

	// Non-boolean result is an error, not an allow.
	_, err = advisor.Evaluate(`entry_point`, AdvisorInput{EntryPoint: EntryManualEdit})
	assert.Error(t, err)
}

func TestHybridAdvisor_CachesPrograms(t *testing.T) {
	advisor, err := NewHybridAdvisor()
	require.NoError(t, err)

	rule := `origin == "human"`
	for i := 0; i < 3; i++ {
		_, err := advisor.Evaluate(rule, AdvisorInput{Origin: "human"})
		require.NoError(t, err)
	}
	advisor.mu.RLock()
	defer advisor.mu.RUnlock()
	assert.Len(t, advisor.prgCache, 1)
}
