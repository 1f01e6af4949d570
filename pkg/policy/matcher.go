package policy

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv is the single CEL environment shared by all custom conditions,
// following the teacher's pkg/governance/policy_engine.go approach of
// one env per process with request attributes declared up front.
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("repo", cel.StringType),
		cel.Variable("branch", cel.StringType),
		cel.Variable("files", cel.ListType(cel.StringType)),
		cel.Variable("labels", cel.ListType(cel.StringType)),
		cel.Variable("complexity", cel.DoubleType),
		cel.Variable("source", cel.StringType),
	)
})

// celProgramCache avoids recompiling the same expression on every
// evaluation; keyed by expression text.
var celProgramCache sync.Map // string -> cel.Program

func compileCEL(expr string) (cel.Program, error) {
	if cached, ok := celProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	celProgramCache.Store(expr, prg)
	return prg, nil
}

// matchCondition evaluates a single Condition against a Request,
// returning whether it matched, a human-readable trace line, and an
// error only for the custom/CEL variant (spec.md §4.F: custom
// condition failures propagate as ErrEvaluationFailed, all other
// conditions are total functions over Request).
func matchCondition(cond Condition, req Request) (bool, string, error) {
	switch cond.Type {
	case CondComplexity:
		ok := compareThreshold(req.Resource.Complexity, cond.Operator, cond.Threshold)
		return ok, fmt.Sprintf("complexity %s %.2f on %.2f -> %v", cond.Operator, cond.Threshold, req.Resource.Complexity, ok), nil

	case CondAgent:
		ok := compareThreshold(req.AgentConfidence, cond.Operator, cond.Threshold)
		return ok, fmt.Sprintf("agent confidence %s %.2f on %.2f -> %v", cond.Operator, cond.Threshold, req.AgentConfidence, ok), nil

	case CondFilePattern:
		ok := anyPatternMatches(cond.Patterns, req.Resource.Files)
		return ok, fmt.Sprintf("file_pattern %v against %v -> %v", cond.Patterns, req.Resource.Files, ok), nil

	case CondAuthor:
		ok := patternMatches(cond.Patterns, req.Actor)
		return ok, fmt.Sprintf("author %v against %q -> %v", cond.Patterns, req.Actor, ok), nil

	case CondRepository:
		ok := patternMatches(cond.Patterns, req.Resource.Repo)
		return ok, fmt.Sprintf("repository %v against %q -> %v", cond.Patterns, req.Resource.Repo, ok), nil

	case CondBranch:
		ok := patternMatches(cond.Patterns, req.Resource.Branch)
		return ok, fmt.Sprintf("branch %v against %q -> %v", cond.Patterns, req.Resource.Branch, ok), nil

	case CondLabel:
		ok := matchLabels(cond.Labels, cond.LabelMatch, req.Resource.Labels)
		return ok, fmt.Sprintf("label %s %v against %v -> %v", cond.LabelMatch, cond.Labels, req.Resource.Labels, ok), nil

	case CondTimeWindow:
		ok := matchTimeWindow(cond, req.Context.Timestamp.Hour())
		return ok, fmt.Sprintf("time_window %s [%v,%v) hour=%d -> %v", cond.Mode, cond.StartHour, cond.EndHour, req.Context.Timestamp.Hour(), ok), nil

	case CondCustom:
		return matchCustom(cond, req)

	default:
		return false, fmt.Sprintf("unknown condition type %q treated as non-match", cond.Type), nil
	}
}

func matchCustom(cond Condition, req Request) (bool, string, error) {
	prg, err := compileCEL(cond.Expression)
	if err != nil {
		return false, "", &ErrEvaluationFailed{RuleID: "", Cause: err}
	}
	out, _, err := prg.Eval(map[string]any{
		"actor":      req.Actor,
		"action":     req.Action,
		"repo":       req.Resource.Repo,
		"branch":     req.Resource.Branch,
		"files":      req.Resource.Files,
		"labels":     req.Resource.Labels,
		"complexity": req.Resource.Complexity,
		"source":     req.Context.Source,
	})
	if err != nil {
		return false, "", &ErrEvaluationFailed{RuleID: "", Cause: err}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, "", &ErrEvaluationFailed{RuleID: "", Cause: fmt.Errorf("custom expression %q did not return a bool, got %s", cond.Expression, out.Type())}
	}
	return b, fmt.Sprintf("custom %q -> %v", cond.Expression, b), nil
}

func compareThreshold(value float64, op ComplexityOperator, threshold float64) bool {
	switch op {
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	case OpGTE:
		return value >= threshold
	case OpGT:
		return value > threshold
	default:
		return false
	}
}

// patternMatches reports whether any of patterns matches value; a
// pattern containing glob metacharacters is matched with
// filepath.Match, otherwise it is an exact (case-sensitive) match.
func patternMatches(patterns []string, value string) bool {
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?[") {
			if ok, err := filepath.Match(p, value); err == nil && ok {
				return true
			}
			continue
		}
		if p == value {
			return true
		}
	}
	return false
}

func anyPatternMatches(patterns []string, values []string) bool {
	for _, v := range values {
		if patternMatches(patterns, v) {
			return true
		}
	}
	return false
}

func matchLabels(want []string, mode LabelMatch, have []string) bool {
	haveSet := make(map[string]bool, len(have))
	for _, h := range have {
		haveSet[h] = true
	}
	switch mode {
	case LabelAll:
		for _, w := range want {
			if !haveSet[w] {
				return false
			}
		}
		return true
	case LabelNone:
		for _, w := range want {
			if haveSet[w] {
				return false
			}
		}
		return true
	default: // LabelAny
		for _, w := range want {
			if haveSet[w] {
				return true
			}
		}
		return false
	}
}

func matchTimeWindow(cond Condition, hour int) bool {
	if cond.StartHour == nil || cond.EndHour == nil {
		return false
	}
	inside := hour >= *cond.StartHour && hour < *cond.EndHour
	if cond.Mode == TimeOutside {
		return !inside
	}
	return inside
}
