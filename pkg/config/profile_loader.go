package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weftlabs/substrate/pkg/governance"
)

// GovernanceProfile is a named, file-distributed set of workspace governance
// defaults. Profiles let an operator ship a permissive or locked-down posture
// without touching per-workspace rows; the settings resolver still has the
// final word for workspaces that carry one.
type GovernanceProfile struct {
	Name                 string            `yaml:"name" json:"name"`
	Code                 string            `yaml:"code" json:"code"`
	GovernanceEnabled    bool              `yaml:"governance_enabled" json:"governance_enabled"`
	ValidatorRequired    bool              `yaml:"validator_required" json:"validator_required"`
	DirectWrites         bool              `yaml:"direct_substrate_writes" json:"direct_substrate_writes"`
	UIEnabled            bool              `yaml:"governance_ui_enabled" json:"governance_ui_enabled"`
	CascadeEventsEnabled bool              `yaml:"cascade_events_enabled" json:"cascade_events_enabled"`
	DefaultBlastRadius   string            `yaml:"default_blast_radius,omitempty" json:"default_blast_radius,omitempty"`
	EntryPointPolicies   map[string]string `yaml:"entry_point_policies,omitempty" json:"entry_point_policies,omitempty"`
	HybridRule           string            `yaml:"hybrid_rule,omitempty" json:"hybrid_rule,omitempty"`
}

// LoadProfile loads a governance profile YAML by code. It searches the
// profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*GovernanceProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile GovernanceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}
	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", code, err)
	}
	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*GovernanceProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*GovernanceProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile GovernanceProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_strict.yaml -> strict
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		if err := profile.validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", path, err)
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

func (p *GovernanceProfile) validate() error {
	if p.DefaultBlastRadius != "" && !governance.KnownBlastRadius(governance.BlastRadius(p.DefaultBlastRadius)) {
		return fmt.Errorf("unknown blast radius %q", p.DefaultBlastRadius)
	}
	for ep, policy := range p.EntryPointPolicies {
		if !governance.KnownEntryPoint(governance.EntryPoint(ep)) {
			return fmt.Errorf("unknown entry point %q", ep)
		}
		if !governance.KnownPolicy(governance.Policy(policy)) {
			return fmt.Errorf("unknown policy %q for entry point %q", policy, ep)
		}
	}
	return nil
}

// Flags converts the profile into resolver-shaped governance flags, filling
// any entry points the profile leaves out from the hardcoded defaults.
func (p *GovernanceProfile) Flags() governance.GovernanceFlags {
	flags := governance.HardcodedDefaults()
	flags.GovernanceEnabled = p.GovernanceEnabled
	flags.ValidatorRequired = p.ValidatorRequired
	flags.DirectSubstrateWrites = p.DirectWrites
	flags.GovernanceUIEnabled = p.UIEnabled
	flags.CascadeEventsEnabled = p.CascadeEventsEnabled
	if p.DefaultBlastRadius != "" {
		flags.DefaultBlastRadius = governance.BlastRadius(p.DefaultBlastRadius)
	}
	for ep, policy := range p.EntryPointPolicies {
		flags.EntryPointPolicies[governance.EntryPoint(ep)] = governance.Policy(policy)
	}
	flags.HybridRule = p.HybridRule
	return flags
}
