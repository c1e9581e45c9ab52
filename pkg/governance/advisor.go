package governance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// HybridAdvisor evaluates workspace-configured CEL guard expressions for
// entry points routed under the hybrid policy. A rule that evaluates to true
// is how the API layer decides to pass the allow_auto override into Route;
// the router itself stays a pure function of its arguments.
//
// Compiled programs are cached per rule source.
type HybridAdvisor struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// AdvisorInput is the evaluation context exposed to guard expressions.
type AdvisorInput struct {
	EntryPoint  EntryPoint
	Confidence  float64
	Origin      string
	BlastRadius BlastRadius
}

// NewHybridAdvisor creates an advisor with the standard environment. Guard
// expressions see entry_point, confidence, origin, and blast_radius.
func NewHybridAdvisor() (*HybridAdvisor, error) {
	env, err := cel.NewEnv(
		cel.Variable("entry_point", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("origin", cel.StringType),
		cel.Variable("blast_radius", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &HybridAdvisor{
		env:      env,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// Evaluate compiles (or fetches) the rule and runs it against the input.
// A rule that does not produce a boolean is an error; callers treat any
// error as "do not allow auto-execution".
func (a *HybridAdvisor) Evaluate(rule string, input AdvisorInput) (bool, error) {
	if rule == "" {
		return false, nil
	}

	prg, err := a.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"entry_point":  string(input.EntryPoint),
		"confidence":   input.Confidence,
		"origin":       input.Origin,
		"blast_radius": string(input.BlastRadius),
	})
	if err != nil {
		return false, fmt.Errorf("hybrid rule evaluation failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("hybrid rule must evaluate to bool, got %T", out.Value())
	}
	return allowed, nil
}

func (a *HybridAdvisor) program(rule string) (cel.Program, error) {
	a.mu.RLock()
	prg, ok := a.prgCache[rule]
	a.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := a.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("hybrid rule compile failed: %w", issues.Err())
	}
	prg, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("hybrid rule program failed: %w", err)
	}

	a.mu.Lock()
	a.prgCache[rule] = prg
	a.mu.Unlock()
	return prg, nil
}
