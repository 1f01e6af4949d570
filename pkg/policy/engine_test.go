package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docWithRules(rules ...Rule) *Document {
	return &Document{
		Version:     V2_0,
		Name:        "test-policy",
		Scope:       ScopeRepo,
		Inheritance: InheritOverride,
		Rules:       rules,
		DefaultAction: Action{
			Effect: EffectAllow,
			Reason: "nothing matched",
		},
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	doc := docWithRules(
		Rule{ID: "low-priority-deny", Priority: 1, Enabled: true, Action: Action{Effect: EffectDeny, Reason: "low"}},
		Rule{ID: "high-priority-allow", Priority: 10, Enabled: true, Action: Action{Effect: EffectAllow, Reason: "high"}},
	)
	engine := NewEngine(nil)
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, Request{})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "high-priority-allow", result.MatchedRule)
}

func TestEngine_DisabledRulesSkipped(t *testing.T) {
	doc := docWithRules(
		Rule{ID: "disabled-deny", Priority: 100, Enabled: false, Action: Action{Effect: EffectDeny}},
	)
	engine := NewEngine(nil)
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, Request{})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, EffectAllow, result.Effect)
}

func TestEngine_DefaultActionWhenNoMatch(t *testing.T) {
	doc := docWithRules(
		Rule{
			ID: "only-matches-big-diffs", Priority: 5, Enabled: true,
			Conditions: []Condition{{Type: CondComplexity, Operator: OpGTE, Threshold: 9}},
			Action:     Action{Effect: EffectDeny},
		},
	)
	engine := NewEngine(nil)
	req := Request{Resource: RequestResource{Complexity: 2}}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.MatchedRule)
}

func TestEngine_RequireApprovalUpgradesToAllowWhenSatisfied(t *testing.T) {
	doc := docWithRules(
		Rule{
			ID: "needs-approval", Priority: 5, Enabled: true,
			Action: Action{Effect: EffectRequireApproval, Approval: &ApprovalConfig{MinApprovers: 1}},
		},
	)
	engine := NewEngine(nil)
	req := Request{
		HasApproval: true,
		Approvals:   []Approval{{ApproverID: "alice"}},
	}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, EffectAllow, result.Effect)
}

func TestEngine_ContinueOnMatchAccumulatesSideEffects(t *testing.T) {
	doc := docWithRules(
		Rule{ID: "notify-first", Priority: 10, Enabled: true, Action: Action{Effect: EffectNotify, ContinueOnMatch: true}},
		Rule{ID: "deny-final", Priority: 5, Enabled: true, Action: Action{Effect: EffectDeny}},
	)
	engine := NewEngine(nil)
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, Request{})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Contains(t, result.RequiredActions, "notify:notify-first")
}

func TestEngine_ExtendInheritanceAppendsParentBeforeChild(t *testing.T) {
	parent := docWithRules(Rule{ID: "parent-deny", Priority: 1, Enabled: true, Action: Action{Effect: EffectDeny}})
	parent.Inheritance = InheritExtend
	child := docWithRules(Rule{ID: "child-allow", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	child.Inheritance = InheritExtend

	rp := &ResolvedPolicy{Document: child, Parent: &ResolvedPolicy{Document: parent}}
	engine := NewEngine(nil)
	result, err := engine.Evaluate(rp, Request{})
	require.NoError(t, err)
	// equal priority, stable order: parent rules precede child rules, so parent-deny wins first.
	assert.Equal(t, "parent-deny", result.MatchedRule)
}

func TestEngine_StrictInheritanceCollisionErrors(t *testing.T) {
	parent := docWithRules(Rule{ID: "shared", Priority: 1, Enabled: true, Action: Action{Effect: EffectDeny}})
	child := docWithRules(Rule{ID: "shared", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	child.Inheritance = InheritStrict

	rp := &ResolvedPolicy{Document: child, Parent: &ResolvedPolicy{Document: parent}}
	engine := NewEngine(nil)
	_, err := engine.Evaluate(rp, Request{})
	assert.ErrorIs(t, err, ErrRuleIDCollision)
}

func TestEngine_OverrideInheritanceIgnoresParent(t *testing.T) {
	parent := docWithRules(Rule{ID: "parent-only", Priority: 1, Enabled: true, Action: Action{Effect: EffectDeny}})
	child := docWithRules(Rule{ID: "child-only", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	child.Inheritance = InheritOverride

	rp := &ResolvedPolicy{Document: child, Parent: &ResolvedPolicy{Document: parent}}
	engine := NewEngine(nil)
	result, err := engine.Evaluate(rp, Request{})
	require.NoError(t, err)
	assert.Equal(t, "child-only", result.MatchedRule)
}

type staticTierResolver struct {
	class      OperationClassification
	found      bool
	tierPolicy TierPolicy
	tierFound  bool
}

func (s staticTierResolver) Classify(operationType string) (OperationClassification, bool) {
	return s.class, s.found
}

func (s staticTierResolver) TierPolicyFor(tier RiskTier) (TierPolicy, bool) {
	return s.tierPolicy, s.tierFound
}

func TestEngine_TierOverlayDeniesBelowMinimumTier(t *testing.T) {
	doc := docWithRules(Rule{ID: "allow-all", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	tiers := staticTierResolver{found: true, class: OperationClassification{OperationType: "force_push", MinimumTier: R3}}
	engine := NewEngine(tiers)

	req := Request{OperationType: "force_push", CurrentTier: R1, TenantMaxTier: R4, PolicyMaxTier: R4}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, EffectDeny, result.Effect)
}

func TestEngine_TierOverlayDeniesOperationOutsideToolAllowlist(t *testing.T) {
	doc := docWithRules(Rule{ID: "allow-all", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	tiers := staticTierResolver{
		found: true, class: OperationClassification{OperationType: "merge_pr", MinimumTier: R0},
		tierFound:  true,
		tierPolicy: TierPolicy{Tier: R1, ToolAllowlist: []string{"read_file", "list_branches"}},
	}
	engine := NewEngine(tiers)

	req := Request{OperationType: "merge_pr", CurrentTier: R1, TenantMaxTier: R4, PolicyMaxTier: R4}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, EffectDeny, result.Effect)
	assert.Contains(t, result.Reason, "tool allowlist")
}

func TestEngine_TierOverlayDeniesBlockedOperation(t *testing.T) {
	doc := docWithRules(Rule{ID: "allow-all", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	tiers := staticTierResolver{
		found: true, class: OperationClassification{OperationType: "delete_branch", MinimumTier: R0},
		tierFound:  true,
		tierPolicy: TierPolicy{Tier: R2, BlockedOperations: []string{"delete_branch"}},
	}
	engine := NewEngine(tiers)

	req := Request{OperationType: "delete_branch", CurrentTier: R2, TenantMaxTier: R4, PolicyMaxTier: R4}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, EffectDeny, result.Effect)
	assert.Contains(t, result.Reason, "blocked")
}

func TestEngine_TierOverlayAllowsOperationInAllowlist(t *testing.T) {
	doc := docWithRules(Rule{ID: "allow-all", Priority: 1, Enabled: true, Action: Action{Effect: EffectAllow}})
	tiers := staticTierResolver{
		found: true, class: OperationClassification{OperationType: "read_file", MinimumTier: R0},
		tierFound:  true,
		tierPolicy: TierPolicy{Tier: R1, ToolAllowlist: []string{"read_file", "list_branches"}},
	}
	engine := NewEngine(tiers)

	req := Request{OperationType: "read_file", CurrentTier: R1, TenantMaxTier: R4, PolicyMaxTier: R4}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestEngine_CustomConditionEvaluationError(t *testing.T) {
	doc := docWithRules(Rule{
		ID: "bad-expr", Priority: 1, Enabled: true,
		Conditions: []Condition{{Type: CondCustom, Expression: "actor ++ action"}},
		Action:     Action{Effect: EffectDeny},
	})
	engine := NewEngine(nil)
	_, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, Request{})
	require.Error(t, err)
	var eef *ErrEvaluationFailed
	assert.ErrorAs(t, err, &eef)
	assert.Equal(t, "bad-expr", eef.RuleID)
}

func TestEngine_TimeWindowDuring(t *testing.T) {
	start, end := 22, 6
	doc := docWithRules(Rule{
		ID: "after-hours-deny", Priority: 1, Enabled: true,
		Conditions: []Condition{{Type: CondTimeWindow, StartHour: &start, EndHour: &end, Mode: TimeDuring}},
		Action:     Action{Effect: EffectDeny},
	})
	engine := NewEngine(nil)
	req := Request{Context: RequestContext{Timestamp: time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)}}
	result, err := engine.Evaluate(&ResolvedPolicy{Document: doc}, req)
	require.NoError(t, err)
	assert.True(t, result.Allowed) // start > end is never satisfied by matchTimeWindow's half-open range
}
