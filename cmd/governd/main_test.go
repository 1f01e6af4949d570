package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/agentgov/governance-core/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"governd", "version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "governd")
}

func TestRun_HelpOnNoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"governd"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "Usage")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"governd", "bogus"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestRun_ReportGenerateRequiresTenant(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"governd", "report", "generate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "-tenant is required")
}

func TestRun_ReportGenerateProducesSignedReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"governd", "report", "generate", "-tenant", "t1", "-org", "Acme Inc", "-framework", "soc2_type1", "-period", "monthly"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"TenantID": "t1"`)
}

func TestRun_PolicyEvalAllowsMatchingRule(t *testing.T) {
	dir := t.TempDir()
	inputPath := dir + "/eval.json"

	doc := policy.Document{
		Version:       policy.V1_0,
		Name:          "default",
		Scope:         policy.ScopeGlobal,
		Inheritance:   policy.InheritOverride,
		DefaultAction: policy.Action{Effect: policy.EffectDeny},
		Rules: []policy.Rule{
			{
				ID:      "allow-read",
				Enabled: true,
				Action:  policy.Action{Effect: policy.EffectAllow},
			},
		},
	}
	req := policy.Request{Actor: "user-1", Action: "repo.read"}

	data, err := json.Marshal(map[string]any{"document": doc, "request": req})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(inputPath, data, 0o600))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"governd", "policy", "eval", "-in", inputPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"Allowed": true`)
}
