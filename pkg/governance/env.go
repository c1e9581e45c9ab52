package governance

// Environment variable names consumed by DefaultsFromEnv.
const (
	EnvGovernanceEnabled     = "GOVERNANCE_ENABLED"
	EnvValidatorRequired     = "VALIDATOR_REQUIRED"
	EnvDirectSubstrateWrites = "DIRECT_SUBSTRATE_WRITES"
	EnvGovernanceUIEnabled   = "GOVERNANCE_UI_ENABLED"
	EnvCascadeEventsEnabled  = "CASCADE_EVENTS_ENABLED"
)

// ParseStrictBool parses a boolean environment value strictly: only the
// literal string "true" yields true. "1", "TRUE", "yes", garbage, and empty
// all yield false.
func ParseStrictBool(s string) bool {
	return s == "true"
}

// ParseStrictBoolDefaultTrue is the complement used for fields whose
// hardcoded default is true: only the literal string "false" turns them off.
func ParseStrictBoolDefaultTrue(s string) bool {
	return s != "false"
}

// DefaultsFromEnv layers environment-derived values over the hardcoded
// defaults. Lookup abstracts os.LookupEnv so resolution stays testable and
// the environment is read in exactly one place.
func DefaultsFromEnv(lookup func(string) (string, bool)) GovernanceFlags {
	return overlayEnv(HardcodedDefaults(), lookup)
}

func overlayEnv(flags GovernanceFlags, lookup func(string) (string, bool)) GovernanceFlags {
	if v, ok := lookup(EnvGovernanceEnabled); ok {
		flags.GovernanceEnabled = ParseStrictBool(v)
	}
	if v, ok := lookup(EnvValidatorRequired); ok {
		flags.ValidatorRequired = ParseStrictBool(v)
	}
	if v, ok := lookup(EnvDirectSubstrateWrites); ok {
		flags.DirectSubstrateWrites = ParseStrictBoolDefaultTrue(v)
	}
	if v, ok := lookup(EnvGovernanceUIEnabled); ok {
		flags.GovernanceUIEnabled = ParseStrictBool(v)
	}
	if v, ok := lookup(EnvCascadeEventsEnabled); ok {
		flags.CascadeEventsEnabled = ParseStrictBoolDefaultTrue(v)
	}
	return flags
}
