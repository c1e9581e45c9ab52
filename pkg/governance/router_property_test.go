// Property-based tests for routing determinism and strict boolean parsing.
package governance

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestParseStrictBoolProperty verifies parseBool(s) == true iff s == "true".
func TestParseStrictBoolProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("only the literal true parses as true", prop.ForAll(
		func(s string) bool {
			return ParseStrictBool(s) == (s == "true")
		},
		gen.AnyString(),
	))

	properties.Property("only the literal false parses as false for default-true fields", prop.ForAll(
		func(s string) bool {
			return ParseStrictBoolDefaultTrue(s) == (s != "false")
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestRouteDeterminismProperty verifies Route is a pure function: repeated
// calls with identical arguments return identical results, and the result is
// always one of the two execution modes.
func TestRouteDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	entryPoints := make([]any, 0, len(EntryPoints))
	for _, ep := range EntryPoints {
		entryPoints = append(entryPoints, ep)
	}
	policies := []any{PolicyProposal, PolicyDirect, PolicyHybrid}

	properties.Property("route is deterministic and total", prop.ForAll(
		func(ep EntryPoint, policy Policy, enabled, validatorRequired, hasConfidence bool, confidence float64, override string) bool {
			flags := HardcodedDefaults()
			flags.GovernanceEnabled = enabled
			flags.ValidatorRequired = validatorRequired
			flags.EntryPointPolicies[ep] = policy

			var c *float64
			if hasConfidence {
				c = &confidence
			}

			first := Route(ep, flags, c, override, nil)
			second := Route(ep, flags, c, override, nil)
			if first != second {
				return false
			}
			return first == ModeDirect || first == ModeProposal
		},
		gen.OneConstOf(entryPoints...),
		gen.OneConstOf(policies...),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.Float64Range(0, 1),
		gen.OneConstOf("", OverrideAllowAuto, "deny"),
	))

	properties.TestingRun(t)
}
