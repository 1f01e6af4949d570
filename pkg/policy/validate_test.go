package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalDoc(t *testing.T) []byte {
	t.Helper()
	return []byte(`{
		"version": "2.0",
		"name": "default-repo-policy",
		"scope": "repo",
		"inheritance": "extend",
		"rules": [
			{
				"id": "deny-large-diff",
				"name": "Deny large diffs without approval",
				"enabled": true,
				"priority": 10,
				"conditions": [{"type": "complexity", "operator": "gte", "threshold": 8}],
				"action": {"effect": "require_approval", "approval": {"minApprovers": 1, "allowSelfApproval": false}}
			}
		],
		"defaultAction": {"effect": "allow"}
	}`)
}

func TestValidate_MinimalDocumentPasses(t *testing.T) {
	result := Validate(minimalDoc(t), ValidateOptions{})
	require.Empty(t, result.Errors)
	require.NotNil(t, result.Document)
	assert.Equal(t, "default-repo-policy", result.Document.Name)
}

func TestValidate_DuplicateRuleID(t *testing.T) {
	raw := []byte(`{
		"version": "2.0", "name": "dup", "scope": "repo", "inheritance": "extend",
		"rules": [
			{"id": "r1", "name": "a", "action": {"effect": "allow"}},
			{"id": "r1", "name": "b", "action": {"effect": "deny"}}
		],
		"defaultAction": {"effect": "deny"}
	}`)
	result := Validate(raw, ValidateOptions{})
	assertHasCode(t, result.Errors, CodeDuplicateRuleID)
}

func TestValidate_RequireApprovalWithoutConfig(t *testing.T) {
	raw := []byte(`{
		"version": "2.0", "name": "n", "scope": "repo", "inheritance": "extend",
		"rules": [{"id": "r1", "name": "a", "action": {"effect": "require_approval"}}],
		"defaultAction": {"effect": "deny"}
	}`)
	result := Validate(raw, ValidateOptions{})
	assertHasCode(t, result.Errors, CodeMissingApprovalConfig)
}

func TestValidate_GlobalScopeWithParentIsInvalid(t *testing.T) {
	raw := []byte(`{
		"version": "2.0", "name": "n", "scope": "global", "inheritance": "override",
		"parentPolicyId": "parent-1",
		"rules": [], "defaultAction": {"effect": "allow"}
	}`)
	result := Validate(raw, ValidateOptions{})
	assertHasCode(t, result.Errors, CodeInvalidParentScope)
}

func TestValidate_InvalidGlobPattern(t *testing.T) {
	raw := []byte(`{
		"version": "2.0", "name": "n", "scope": "repo", "inheritance": "extend",
		"rules": [{
			"id": "r1", "name": "a",
			"conditions": [{"type": "file_pattern", "patterns": ["***"]}],
			"action": {"effect": "deny"}
		}],
		"defaultAction": {"effect": "allow"}
	}`)
	result := Validate(raw, ValidateOptions{})
	assertHasCode(t, result.Errors, CodeInvalidPattern)
}

func TestValidate_TimeWindowStartAfterEnd(t *testing.T) {
	raw := []byte(`{
		"version": "2.0", "name": "n", "scope": "repo", "inheritance": "extend",
		"rules": [{
			"id": "r1", "name": "a",
			"conditions": [{"type": "time_window", "startHour": 20, "endHour": 5, "mode": "during"}],
			"action": {"effect": "deny"}
		}],
		"defaultAction": {"effect": "allow"}
	}`)
	result := Validate(raw, ValidateOptions{})
	assertHasCode(t, result.Errors, CodeInvalidFieldValue)
}

func TestValidate_InvalidSchemaRejectsBadEffect(t *testing.T) {
	raw := []byte(`{
		"version": "2.0", "name": "n", "scope": "repo", "inheritance": "extend",
		"rules": [{"id": "r1", "name": "a", "action": {"effect": "nuke"}}],
		"defaultAction": {"effect": "allow"}
	}`)
	result := Validate(raw, ValidateOptions{})
	assertHasCode(t, result.Errors, CodeInvalidSchema)
}

func TestValidate_AutoMigrateChainsFromV1_0(t *testing.T) {
	raw := []byte(`{
		"version": "1.0", "name": "n", "scope": "repo",
		"rules": [{"id": "r1", "name": "a", "action": {"effect": "allow"}}],
		"defaultAction": {"effect": "allow"}
	}`)
	result := Validate(raw, ValidateOptions{AutoMigrate: true})
	require.Empty(t, result.Errors)
	require.NotNil(t, result.Document)
	assert.True(t, result.Migrated)
	assert.Equal(t, V2_0, result.Document.Version)
	assert.Equal(t, InheritOverride, result.Document.Inheritance)
}

func assertHasCode(t *testing.T, errs []ValidationError, code string) {
	t.Helper()
	for _, e := range errs {
		if e.Code == code {
			return
		}
	}
	t.Fatalf("expected error code %s, got %+v", code, errs)
}
