package cognitive

import (
	"errors"
	"fmt"
	"os"

	"github.com/anacreon-labs/factledger/internal/domain"
	"gopkg.in/yaml.v3"
)

var ErrActionNotPermitted = errors.New("action not permitted")

type Action string

const (
	ActionSearchWeb Action = "search_web"
	ActionLearn     Action = "learn"
	ActionAssert    Action = "assert"
)

// ModePermissions lists what a single mode may do.
type ModePermissions struct {
	SearchWeb              bool `yaml:"search_web" json:"search_web"`
	Learn                  bool `yaml:"learn" json:"learn"`
	Assert                 bool `yaml:"assert" json:"assert"`
	RequiresHighConfidence bool `yaml:"requires_high_confidence" json:"requires_high_confidence"`
}

func (p ModePermissions) allows(a Action) bool {
	switch a {
	case ActionSearchWeb:
		return p.SearchWeb
	case ActionLearn:
		return p.Learn
	case ActionAssert:
		return p.Assert
	}
	return false
}

// PermissionTable is an immutable per-mode permission set. Build one with
// DefaultPermissions, ParsePermissions or LoadPermissions.
type PermissionTable struct {
	modes map[domain.CognitiveMode]ModePermissions
}

func DefaultPermissions() PermissionTable {
	return PermissionTable{modes: map[domain.CognitiveMode]ModePermissions{
		domain.ModeAnswer:        {Assert: true, RequiresHighConfidence: true},
		domain.ModeInvestigation: {SearchWeb: true},
		domain.ModeValidation:    {},
		domain.ModeLearning:      {Learn: true},
		domain.ModeCodeAnalysis:  {SearchWeb: true},
	}}
}

type permissionFile struct {
	Modes map[string]ModePermissions `yaml:"modes"`
}

// ParsePermissions reads a YAML table of the form
//
//	modes:
//	  ANSWER: {assert: true, requires_high_confidence: true}
//	  INVESTIGATION: {search_web: true}
//
// Every mode must be present.
func ParsePermissions(data []byte) (PermissionTable, error) {
	var file permissionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PermissionTable{}, fmt.Errorf("parse permissions: %w", err)
	}

	modes := make(map[domain.CognitiveMode]ModePermissions, len(file.Modes))
	for name, perms := range file.Modes {
		if !domain.ValidCognitiveMode(name) {
			return PermissionTable{}, fmt.Errorf("parse permissions: unknown mode %q", name)
		}
		modes[domain.CognitiveMode(name)] = perms
	}
	for _, m := range domain.AllModes() {
		if _, ok := modes[m]; !ok {
			return PermissionTable{}, fmt.Errorf("parse permissions: mode %s missing", m)
		}
	}
	return PermissionTable{modes: modes}, nil
}

func LoadPermissions(path string) (PermissionTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PermissionTable{}, fmt.Errorf("read permissions file: %w", err)
	}
	return ParsePermissions(data)
}

// For returns the permissions of mode. Unknown modes get none.
func (t PermissionTable) For(mode domain.CognitiveMode) ModePermissions {
	return t.modes[mode]
}

// Check fails with ErrActionNotPermitted when mode may not perform action.
func (t PermissionTable) Check(mode domain.CognitiveMode, action Action) error {
	if !t.For(mode).allows(action) {
		return fmt.Errorf("%w: mode %s cannot %s", ErrActionNotPermitted, mode, action)
	}
	return nil
}

// Modes returns a copy of the table for display.
func (t PermissionTable) Modes() map[domain.CognitiveMode]ModePermissions {
	out := make(map[domain.CognitiveMode]ModePermissions, len(t.modes))
	for m, p := range t.modes {
		out[m] = p
	}
	return out
}
