package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatches_ExactAndGlob(t *testing.T) {
	assert.True(t, patternMatches([]string{"main"}, "main"))
	assert.False(t, patternMatches([]string{"main"}, "develop"))
	assert.True(t, patternMatches([]string{"release/*"}, "release/1.0"))
	assert.False(t, patternMatches([]string{"release/*"}, "main"))
}

func TestMatchLabels_Modes(t *testing.T) {
	have := []string{"urgent", "infra"}
	assert.True(t, matchLabels([]string{"urgent"}, LabelAny, have))
	assert.True(t, matchLabels([]string{"urgent", "infra"}, LabelAll, have))
	assert.False(t, matchLabels([]string{"urgent", "security"}, LabelAll, have))
	assert.True(t, matchLabels([]string{"security"}, LabelNone, have))
	assert.False(t, matchLabels([]string{"urgent"}, LabelNone, have))
}

func TestCompareThreshold_AllOperators(t *testing.T) {
	assert.True(t, compareThreshold(3, OpLT, 5))
	assert.True(t, compareThreshold(5, OpLTE, 5))
	assert.True(t, compareThreshold(5, OpEQ, 5))
	assert.True(t, compareThreshold(5, OpGTE, 5))
	assert.True(t, compareThreshold(6, OpGT, 5))
	assert.False(t, compareThreshold(6, OpLT, 5))
}

func TestMatchCustom_CELExpressionEvaluatesAgainstRequest(t *testing.T) {
	cond := Condition{Type: CondCustom, Expression: `repo.startsWith("infra-") && complexity > 5.0`}
	req := Request{Resource: RequestResource{Repo: "infra-core", Complexity: 7}}
	matched, _, err := matchCondition(cond, req)
	require.NoError(t, err)
	assert.True(t, matched)

	req2 := Request{Resource: RequestResource{Repo: "website", Complexity: 7}}
	matched2, _, err := matchCondition(cond, req2)
	require.NoError(t, err)
	assert.False(t, matched2)
}

func TestMatchCustom_NonBoolExpressionFails(t *testing.T) {
	cond := Condition{Type: CondCustom, Expression: `complexity + 1.0`}
	_, _, err := matchCondition(cond, Request{})
	require.Error(t, err)
	var eef *ErrEvaluationFailed
	assert.ErrorAs(t, err, &eef)
}
