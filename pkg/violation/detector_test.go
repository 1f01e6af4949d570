package violation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_CreatesNewViolation(t *testing.T) {
	store := NewMemoryStore()
	detector := NewDetector(store, DefaultConfig(), nil, nil)

	result, err := detector.Detect(context.Background(), DetectionInput{
		TenantID: "tenant-1",
		Type:     TypePolicyDenied,
		Actor:    Actor{ID: "agent-7"},
		Resource: Resource{ID: "repo-1"},
		Action:   "merge",
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.False(t, result.Deduplicated)
	assert.Equal(t, SeverityHigh, result.Violation.Severity)
	assert.Equal(t, StatusDetected, result.Violation.Status)
}

func TestDetector_DeduplicatesWithinInterval(t *testing.T) {
	store := NewMemoryStore()
	detector := NewDetector(store, DefaultConfig(), nil, nil)

	in := DetectionInput{
		TenantID: "tenant-1", Type: TypeLimitExceeded,
		Actor: Actor{ID: "agent-1"}, Resource: Resource{ID: "repo-9"}, Action: "push",
	}
	first, err := detector.Detect(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := detector.Detect(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Deduplicated)
}

func TestDetector_ApprovalBypassedIsCritical(t *testing.T) {
	store := NewMemoryStore()
	detector := NewDetector(store, DefaultConfig(), nil, nil)

	result, err := detector.Detect(context.Background(), DetectionInput{
		TenantID: "t1", Type: TypeApprovalBypassed,
		Actor: Actor{ID: "a"}, Resource: Resource{ID: "r"}, Action: "merge",
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, result.Violation.Severity)
	assert.Equal(t, StatusEscalated, result.Violation.Status)
}

func TestDetector_LimitExceededBumpsToHighAtDoubleLimit(t *testing.T) {
	store := NewMemoryStore()
	detector := NewDetector(store, DefaultConfig(), nil, nil)

	result, err := detector.Detect(context.Background(), DetectionInput{
		TenantID: "t1", Type: TypeLimitExceeded,
		Actor: Actor{ID: "a"}, Resource: Resource{ID: "r"}, Action: "call",
		Details: Details{"limit": 10.0, "actual": 25.0},
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, result.Violation.Severity)
}

func TestDetector_PatternEmittedAtThreshold(t *testing.T) {
	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.PatternThreshold = 3
	cfg.MinViolationIntervalMs = 0 // 0 selects the 60s default; distinct RuleOrSignalIDs keep the detections from deduplicating

	var patterns []Pattern
	detector := NewDetector(store, cfg, nil, func(p Pattern) { patterns = append(patterns, p) })

	for i := 0; i < 3; i++ {
		_, err := detector.Detect(context.Background(), DetectionInput{
			TenantID: "t1", Type: TypePolicyDenied,
			Actor: Actor{ID: "a"}, Resource: Resource{ID: "r"}, Action: "x",
			RuleOrSignalID: uniqueID(i),
		})
		require.NoError(t, err)
	}

	require.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].Count)
}

// TestDetector_PatternEmittedExactlyOncePerWindow is spec.md §8
// scenario S5: 4 denied pushes by the same actor within the
// aggregation window with patternThreshold=3 invoke onPatternDetected
// exactly once with count>=3, not once per detection past threshold.
func TestDetector_PatternEmittedExactlyOncePerWindow(t *testing.T) {
	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.PatternThreshold = 3
	cfg.MinViolationIntervalMs = 0 // 0 selects the 60s default; distinct RuleOrSignalIDs keep the detections from deduplicating

	var patterns []Pattern
	detector := NewDetector(store, cfg, nil, func(p Pattern) { patterns = append(patterns, p) })

	for i := 0; i < 4; i++ {
		_, err := detector.Detect(context.Background(), DetectionInput{
			TenantID: "t1", Type: TypePolicyDenied,
			Actor: Actor{ID: "a"}, Resource: Resource{ID: "r"}, Action: "x",
			RuleOrSignalID: uniqueID(i),
		})
		require.NoError(t, err)
	}

	require.Len(t, patterns, 1)
	assert.GreaterOrEqual(t, patterns[0].Count, 3)
}

func uniqueID(i int) string {
	return "rule-" + string(rune('a'+i))
}
