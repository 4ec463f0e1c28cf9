// Package skill implements the capability registry and trust gate. Skills
// declare what they can do, how risky it is, and which trust tier may run
// them; the registry validates every invocation against that declaration
// before any handler executes.
package skill

import (
	"fmt"

	"volition/internal/desire"
)

// FieldSpec declares one input or output field of a skill.
type FieldSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // string | number | bool | path | command | any
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Validator is an optional per-field predicate. Not serializable;
	// attached in code for built-in skills.
	Validator func(any) error `json:"-" yaml:"-"`
}

// Manifest is the static capability descriptor for a skill.
type Manifest struct {
	ID               string            `json:"id" yaml:"id"`
	Category         string            `json:"category" yaml:"category"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Inputs           []FieldSpec       `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs          []FieldSpec       `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Risk             desire.RiskLevel  `json:"risk" yaml:"risk"`
	MinTrustLevel    desire.TrustLevel `json:"min_trust_level" yaml:"min_trust_level"`
	RequiresApproval bool              `json:"requires_approval" yaml:"requires_approval"`

	// AllowedDirectories bounds every path-typed input. Empty means the
	// skill takes no path arguments; a path input without an allow-list is
	// a validation failure, not an open door.
	AllowedDirectories []string `json:"allowed_directories,omitempty" yaml:"allowed_directories,omitempty"`

	// CommandWhitelist bounds every command-typed input by exact token
	// match on the command name. Substring matching is never used.
	CommandWhitelist []string `json:"command_whitelist,omitempty" yaml:"command_whitelist,omitempty"`

	// ReadOnly marks skills with no side effects. Only these are eligible
	// during outcome verification.
	ReadOnly bool `json:"read_only" yaml:"read_only"`
}

// validate checks the manifest itself at registration time.
func (m *Manifest) validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest id is required")
	}
	if m.Risk == "" {
		m.Risk = desire.RiskMedium
	}
	if m.MinTrustLevel == "" {
		m.MinTrustLevel = desire.TrustSuggest
	}
	for _, f := range m.Inputs {
		if f.Name == "" {
			return fmt.Errorf("skill %s: input field without a name", m.ID)
		}
		if f.Type == "path" && len(m.AllowedDirectories) == 0 {
			return fmt.Errorf("skill %s: path input %q requires allowed_directories", m.ID, f.Name)
		}
		if f.Type == "command" && len(m.CommandWhitelist) == 0 {
			return fmt.Errorf("skill %s: command input %q requires command_whitelist", m.ID, f.Name)
		}
	}
	return nil
}
