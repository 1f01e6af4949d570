package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/governance-core/pkg/violation"
)

func baseViolation() violation.Violation {
	detected := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return violation.Violation{
		ID:         "v-1",
		Type:       violation.TypeApprovalBypassed,
		Severity:   violation.SeverityCritical,
		Status:     violation.StatusResolved,
		Actor:      violation.Actor{ID: "agent-1"},
		Resource:   violation.Resource{ID: "repo-1"},
		Action:     "merge",
		Summary:    "merged without approval",
		DetectedAt: detected,
		Metadata:   violation.Metadata{UpdatedAt: detected.Add(10 * time.Hour), ResolutionNotes: "reverted"},
	}
}

func TestGenerator_GeneratesTaskForResolvedViolation(t *testing.T) {
	var captured string
	gen := NewGenerator(DefaultConfig(), func(task GoldenTask, yaml string) { captured = yaml })

	result, err := gen.GenerateFromViolation(baseViolation())
	require.NoError(t, err)
	assert.True(t, result.Generated)
	assert.Equal(t, "incident-v-1", result.Task.ID)
	assert.Equal(t, "approval-gate", result.Task.Workflow)
	assert.True(t, result.Task.SLA.WithinSLA)
	assert.Contains(t, captured, "sla: targetHours=48")
}

func TestGenerator_DeduplicatesByViolationID(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil)
	v := baseViolation()

	first, err := gen.GenerateFromViolation(v)
	require.NoError(t, err)
	assert.True(t, first.Generated)

	second, err := gen.GenerateFromViolation(v)
	require.NoError(t, err)
	assert.False(t, second.Generated)
	assert.Equal(t, "already generated", second.Reason)
}

func TestGenerator_SkipsUnresolvedViolations(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil)
	v := baseViolation()
	v.Status = violation.StatusDetected

	result, err := gen.GenerateFromViolation(v)
	require.NoError(t, err)
	assert.False(t, result.Generated)
}

func TestGenerator_SkipsBelowMinimumSeverity(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil)
	v := baseViolation()
	v.Severity = violation.SeverityLow

	result, err := gen.GenerateFromViolation(v)
	require.NoError(t, err)
	assert.False(t, result.Generated)
}

func TestGenerator_SLABreachedWhenActualExceedsTarget(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil)
	v := baseViolation()
	v.Metadata.UpdatedAt = v.DetectedAt.Add(72 * time.Hour)

	result, err := gen.GenerateFromViolation(v)
	require.NoError(t, err)
	assert.False(t, result.Task.SLA.WithinSLA)
}
