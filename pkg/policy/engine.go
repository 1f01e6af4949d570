package policy

import (
	"sort"
	"time"
)

// ResolvedPolicy is a single policy document plus its parent chain
// reference, as loaded by the caller (e.g. from a policy store keyed
// by scope). The engine itself is storage-agnostic: callers resolve
// the (child, parent...) chain and hand it to Evaluate.
type ResolvedPolicy struct {
	Document *Document
	Parent   *ResolvedPolicy
}

// TierResolver supplies the risk-tier inputs the overlay needs
// (spec.md §4.F step 6): the minimum tier an operation requires, and
// the TierPolicy in force at a given tier (for the tool-allowlist
// clause). The tenant's and policy's maximum permitted tiers travel
// on the Request itself (callers resolve them ahead of Evaluate).
type TierResolver interface {
	Classify(operationType string) (OperationClassification, bool)
	TierPolicyFor(tier RiskTier) (TierPolicy, bool)
}

// Engine evaluates requests against a resolved policy chain.
type Engine struct {
	tiers TierResolver
}

// NewEngine builds an Engine. tiers may be nil, in which case the
// risk-tier overlay (step 6) is skipped entirely.
func NewEngine(tiers TierResolver) *Engine {
	return &Engine{tiers: tiers}
}

// effectiveRule pairs a rule with the document it came from, so trace
// output and collision detection can refer back to the owning policy.
type effectiveRule struct {
	rule       Rule
	sourceName string
}

// resolveRules flattens a ResolvedPolicy chain into one ordered rule
// list honoring each document's inheritance mode, per spec.md §4.F
// step 2.
func resolveRules(rp *ResolvedPolicy) ([]effectiveRule, error) {
	if rp == nil {
		return nil, nil
	}
	own := make([]effectiveRule, 0, len(rp.Document.Rules))
	for _, r := range rp.Document.Rules {
		own = append(own, effectiveRule{rule: r, sourceName: rp.Document.Name})
	}

	parentRules, err := resolveRules(rp.Parent)
	if err != nil {
		return nil, err
	}
	if parentRules == nil {
		return sortRules(own), nil
	}

	switch rp.Document.Inheritance {
	case InheritOverride:
		return sortRules(own), nil
	case InheritExtend:
		combined := append(append([]effectiveRule{}, parentRules...), own...)
		return sortRules(combined), nil
	case InheritStrict:
		seen := make(map[string]bool, len(parentRules))
		for _, pr := range parentRules {
			seen[pr.rule.ID] = true
		}
		for _, r := range own {
			if seen[r.rule.ID] {
				return nil, ErrRuleIDCollision
			}
		}
		combined := append(append([]effectiveRule{}, parentRules...), own...)
		return sortRules(combined), nil
	default:
		return sortRules(own), nil
	}
}

// sortRules orders by descending priority, stable ties by declaration
// order (Go's sort.SliceStable preserves input order for equal keys).
func sortRules(rules []effectiveRule) []effectiveRule {
	out := make([]effectiveRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].rule.Priority > out[j].rule.Priority
	})
	return out
}

// Evaluate runs spec.md §4.F's algorithm over req against the resolved
// policy chain rp, applying the risk-tier overlay if a TierResolver
// was configured.
func (e *Engine) Evaluate(rp *ResolvedPolicy, req Request) (Result, error) {
	start := time.Now()

	rules, err := resolveRules(rp)
	if err != nil {
		return Result{}, err
	}

	meta := ResultMetadata{EvaluatedAt: start}
	meta.PoliciesEvaluated = countPolicies(rp)

	var decided *Result
	var sideEffects []string

	for _, er := range rules {
		r := er.rule
		if !r.Enabled {
			continue
		}
		meta.RulesEvaluated++

		matched, trace, err := evaluateConditions(r.Conditions, req)
		meta.ConditionTrace = append(meta.ConditionTrace, trace...)
		if err != nil {
			if eef, ok := err.(*ErrEvaluationFailed); ok {
				eef.RuleID = r.ID
			}
			return Result{}, err
		}
		if !matched {
			continue
		}

		if r.Action.ContinueOnMatch {
			switch r.Action.Effect {
			case EffectNotify, EffectLogOnly, EffectWarn:
				sideEffects = append(sideEffects, string(r.Action.Effect)+":"+r.ID)
				continue
			}
		}
		res := resultFor(r, req)
		if decided == nil {
			decided = &res
			if !r.Action.ContinueOnMatch {
				break
			}
			continue
		}
		if r.Action.ContinueOnMatch {
			continue
		}
		break
	}

	var final Result
	if decided != nil {
		final = *decided
	} else {
		var doc *Document
		if rp != nil {
			doc = rp.Document
		}
		effect := EffectDeny
		reason := "no rule matched; no default action configured"
		if doc != nil {
			effect = doc.DefaultAction.Effect
			reason = doc.DefaultAction.Reason
			if reason == "" {
				reason = "default action"
			}
		}
		final = Result{
			Allowed: effect == EffectAllow,
			Effect:  effect,
			Reason:  reason,
		}
	}
	final.RequiredActions = append(final.RequiredActions, sideEffects...)

	if e.tiers != nil {
		if overlay, deny := e.tierOverlay(req); deny {
			final = overlay
		}
	}

	meta.EvaluationTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	final.Metadata = meta
	return final, nil
}

// evaluateConditions applies the AND combinator over conditions per
// spec.md §4.F step 3: a rule with zero conditions always matches.
func evaluateConditions(conditions []Condition, req Request) (bool, []string, error) {
	if len(conditions) == 0 {
		return true, nil, nil
	}
	var trace []string
	for _, c := range conditions {
		matched, line, err := matchCondition(c, req)
		trace = append(trace, line)
		if err != nil {
			return false, trace, err
		}
		if !matched {
			return false, trace, nil
		}
	}
	return true, trace, nil
}

func resultFor(r Rule, req Request) Result {
	effect := r.Action.Effect
	allowed := effect == EffectAllow

	if effect == EffectRequireApproval && req.HasApproval && approvalSatisfies(r.Action.Approval, req.Approvals) {
		allowed = true
		effect = EffectAllow
	}

	reason := r.Action.Reason
	if reason == "" {
		reason = "matched rule " + r.ID
	}

	return Result{
		Allowed:     allowed,
		Effect:      effect,
		Reason:      reason,
		MatchedRule: r.ID,
	}
}

func approvalSatisfies(cfg *ApprovalConfig, approvals []Approval) bool {
	if cfg == nil {
		return len(approvals) > 0
	}
	valid := 0
	for _, a := range approvals {
		if a.SelfApproval && !cfg.AllowSelfApproval {
			continue
		}
		if len(cfg.RequiredRoles) > 0 && !containsStr(cfg.RequiredRoles, a.ApproverRole) {
			continue
		}
		valid++
	}
	return valid >= maxInt(cfg.MinApprovers, 1)
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func countPolicies(rp *ResolvedPolicy) int {
	n := 0
	for p := rp; p != nil; p = p.Parent {
		n++
	}
	return n
}

// tierOverlay implements spec.md §4.F step 6. Returns (result, true)
// when the overlay forces a deny; (zero, false) otherwise.
func (e *Engine) tierOverlay(req Request) (Result, bool) {
	class, ok := e.tiers.Classify(req.OperationType)
	if !ok {
		return Result{}, false
	}
	if req.CurrentTier < class.MinimumTier {
		return Result{
			Allowed: false,
			Effect:  EffectDeny,
			Reason:  "operation requires at least tier " + tierName(class.MinimumTier) + " but request is at " + tierName(req.CurrentTier),
		}, true
	}
	if req.PolicyMaxTier < class.MinimumTier {
		return Result{
			Allowed: false,
			Effect:  EffectDeny,
			Reason:  "policy max tier " + tierName(req.PolicyMaxTier) + " is below required " + tierName(class.MinimumTier),
		}, true
	}
	if req.TenantMaxTier < class.MinimumTier {
		return Result{
			Allowed: false,
			Effect:  EffectDeny,
			Reason:  "tenant max tier " + tierName(req.TenantMaxTier) + " is below required " + tierName(class.MinimumTier),
		}, true
	}
	if tp, ok := e.tiers.TierPolicyFor(req.CurrentTier); ok {
		if isBlockedOperation(tp.BlockedOperations, req.OperationType) {
			return Result{
				Allowed: false,
				Effect:  EffectDeny,
				Reason:  "operation " + req.OperationType + " is blocked at tier " + tierName(req.CurrentTier),
			}, true
		}
		if len(tp.ToolAllowlist) > 0 && !containsStr(tp.ToolAllowlist, req.OperationType) {
			return Result{
				Allowed: false,
				Effect:  EffectDeny,
				Reason:  "operation " + req.OperationType + " is not in the tool allowlist for tier " + tierName(req.CurrentTier),
			}, true
		}
	}
	return Result{}, false
}

func isBlockedOperation(blocked []string, operationType string) bool {
	return containsStr(blocked, operationType)
}

func tierName(t RiskTier) string {
	names := [...]string{"R0", "R1", "R2", "R3", "R4"}
	if int(t) < 0 || int(t) >= len(names) {
		return "R?"
	}
	return names[t]
}
