package governance

// AutoExecThreshold is the validator confidence at or above which a hybrid
// policy may resolve to direct execution, and at or above which an attached
// validator report satisfies a validator_required workspace.
const AutoExecThreshold = 0.8

// OverrideAllowAuto is the caller-supplied override that, together with a
// high-confidence score, lets a hybrid entry point execute directly.
const OverrideAllowAuto = "allow_auto"

// Route decides the execution mode for a work request. It is a pure
// function: same inputs, same decision, no side effects.
//
// confidence is the work request's score, nil when no validator ran.
// validated carries an already-attached validator report confidence, nil when
// absent; it only matters when flags.ValidatorRequired is set.
func Route(ep EntryPoint, flags GovernanceFlags, confidence *float64, userOverride string, validated *float64) ExecutionMode {
	// Legacy compatibility: with governance off everything writes directly,
	// whatever the per-entry-point table says.
	if !flags.GovernanceEnabled {
		return ModeDirect
	}

	policy, ok := flags.EntryPointPolicies[ep]
	if !ok {
		policy = PolicyProposal
	}

	var mode ExecutionMode
	switch policy {
	case PolicyDirect:
		mode = ModeDirect
	case PolicyHybrid:
		// Absent confidence fails safe toward review.
		if confidence != nil && *confidence >= AutoExecThreshold && userOverride == OverrideAllowAuto {
			mode = ModeDirect
		} else {
			mode = ModeProposal
		}
	default:
		mode = ModeProposal
	}

	// validator_required never auto-executes unless a validator run already
	// attached a high-confidence report.
	if flags.ValidatorRequired && mode == ModeDirect {
		if validated == nil || *validated < AutoExecThreshold {
			mode = ModeProposal
		}
	}
	return mode
}
