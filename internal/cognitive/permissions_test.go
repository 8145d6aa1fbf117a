package cognitive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPermissions(t *testing.T) {
	perms := DefaultPermissions()

	tests := []struct {
		mode    domain.CognitiveMode
		action  Action
		allowed bool
	}{
		{domain.ModeAnswer, ActionAssert, true},
		{domain.ModeAnswer, ActionSearchWeb, false},
		{domain.ModeAnswer, ActionLearn, false},
		{domain.ModeInvestigation, ActionSearchWeb, true},
		{domain.ModeInvestigation, ActionAssert, false},
		{domain.ModeInvestigation, ActionLearn, false},
		{domain.ModeValidation, ActionSearchWeb, false},
		{domain.ModeValidation, ActionLearn, false},
		{domain.ModeValidation, ActionAssert, false},
		{domain.ModeLearning, ActionLearn, true},
		{domain.ModeLearning, ActionAssert, false},
		{domain.ModeCodeAnalysis, ActionSearchWeb, true},
		{domain.ModeCodeAnalysis, ActionAssert, false},
		{"DREAMING", ActionAssert, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+string(tt.action), func(t *testing.T) {
			err := perms.Check(tt.mode, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrActionNotPermitted)
			}
		})
	}

	assert.True(t, perms.For(domain.ModeAnswer).RequiresHighConfidence)
}

func TestPermissionTable_ModesIsACopy(t *testing.T) {
	perms := DefaultPermissions()
	modes := perms.Modes()
	modes[domain.ModeInvestigation] = ModePermissions{Assert: true}

	assert.ErrorIs(t, perms.Check(domain.ModeInvestigation, ActionAssert), ErrActionNotPermitted)
}

const permissionsYAML = `
modes:
  ANSWER: {assert: true, requires_high_confidence: false}
  INVESTIGATION: {search_web: true}
  VALIDATION: {}
  LEARNING: {learn: false}
  CODE_ANALYSIS: {}
`

func TestLoadPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(permissionsYAML), 0o600))

	perms, err := LoadPermissions(path)
	require.NoError(t, err)

	assert.NoError(t, perms.Check(domain.ModeAnswer, ActionAssert))
	assert.False(t, perms.For(domain.ModeAnswer).RequiresHighConfidence)
	assert.ErrorIs(t, perms.Check(domain.ModeLearning, ActionLearn), ErrActionNotPermitted)
	assert.ErrorIs(t, perms.Check(domain.ModeCodeAnalysis, ActionSearchWeb), ErrActionNotPermitted)
}

func TestParsePermissions_Errors(t *testing.T) {
	_, err := ParsePermissions([]byte("modes:\n  ANSWER: {assert: true}\n"))
	assert.ErrorContains(t, err, "missing")

	_, err = ParsePermissions([]byte("modes:\n  DREAMING: {}\n"))
	assert.ErrorContains(t, err, "unknown mode")

	_, err = ParsePermissions([]byte("modes: [not, a, map]"))
	assert.Error(t, err)

	_, err = LoadPermissions(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		intent  domain.IntentType
		trusted bool
		want    domain.CognitiveMode
	}{
		{domain.IntentCodeRequest, true, domain.ModeCodeAnalysis},
		{domain.IntentSearchRequest, true, domain.ModeInvestigation},
		{domain.IntentTeaching, true, domain.ModeValidation},
		{domain.IntentTeaching, false, domain.ModeValidation},
		{domain.IntentQuestion, true, domain.ModeAnswer},
		{domain.IntentQuestion, false, domain.ModeInvestigation},
		{domain.IntentValidationResponse, false, domain.ModeValidation},
		{domain.IntentUnknown, false, domain.ModeAnswer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectMode(tt.intent, tt.trusted), "%s trusted=%v", tt.intent, tt.trusted)
	}
}
