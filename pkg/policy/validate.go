package policy

import (
	"encoding/json"
	"fmt"
)

// ValidateOptions controls Validate's behaviour.
type ValidateOptions struct {
	AutoMigrate     bool
	IncludeWarnings bool
	IncludeInfo     bool
	CustomRules     []SemanticRule
}

// SemanticRule is an additional, caller-supplied semantic check run
// after the built-in ones.
type SemanticRule func(doc *Document) []ValidationError

// ValidateResult is the outcome of Validate.
type ValidateResult struct {
	Document        *Document
	Errors          []ValidationError
	Warnings        []ValidationError
	Info            []ValidationError
	Migrated        bool
	OriginalVersion string
}

// Validate runs structural (JSON Schema) validation, optional version
// migration, and semantic checks over raw policy JSON, per spec.md §4.E.
func Validate(raw []byte, opts ValidateOptions) ValidateResult {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return ValidateResult{Errors: []ValidationError{{
			Code: CodeInvalidSchema, Message: "not valid JSON: " + err.Error(),
		}}}
	}

	schema, err := compiledDocumentSchema()
	if err != nil {
		return ValidateResult{Errors: []ValidationError{{Code: CodeInvalidSchema, Message: "schema compile: " + err.Error()}}}
	}
	if err := schema.Validate(generic); err != nil {
		return ValidateResult{Errors: []ValidationError{{Code: CodeInvalidSchema, Message: err.Error()}}}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ValidateResult{Errors: []ValidationError{{Code: CodeInvalidSchema, Message: "decode: " + err.Error()}}}
	}

	result := ValidateResult{Document: &doc}

	originalVersion := string(doc.Version)
	if opts.AutoMigrate {
		migrated, didMigrate, err := runMigrations(&doc)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{Code: CodeMigrationFailed, Message: err.Error()})
			return result
		}
		if didMigrate {
			doc = *migrated
			result.Document = &doc
			result.Migrated = true
			result.OriginalVersion = originalVersion
		}
	}

	errs, warnings, infos := semanticChecks(&doc)
	result.Errors = append(result.Errors, errs...)
	if opts.IncludeWarnings {
		result.Warnings = append(result.Warnings, warnings...)
	}
	if opts.IncludeInfo {
		result.Info = append(result.Info, infos...)
	}

	for _, rule := range opts.CustomRules {
		result.Errors = append(result.Errors, rule(&doc)...)
	}

	if len(result.Errors) > 0 {
		result.Document = nil
	}

	return result
}

// semanticChecks implements the cross-field invariants from spec.md §3/§4.E.
func semanticChecks(doc *Document) (errs, warnings, infos []ValidationError) {
	seen := make(map[string]bool, len(doc.Rules))

	for i, rule := range doc.Rules {
		path := fmt.Sprintf("rules[%d]", i)

		if seen[rule.ID] {
			errs = append(errs, ValidationError{Code: CodeDuplicateRuleID, Path: path, Message: fmt.Sprintf("duplicate rule id %q", rule.ID)})
		}
		seen[rule.ID] = true

		if !rule.Enabled && rule.Priority == 0 && len(rule.Conditions) == 0 {
			warnings = append(warnings, ValidationError{Code: CodeUnusedRule, Path: path, Message: "disabled rule with no conditions and default priority is likely dead configuration"})
		}

		if rule.Action.Effect == EffectRequireApproval && rule.Action.Approval == nil {
			errs = append(errs, ValidationError{Code: CodeMissingApprovalConfig, Path: path, Message: "require_approval action needs an approval config"})
		}
		if rule.Action.Approval != nil {
			if rule.Action.Approval.MinApprovers < 1 {
				errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: path + ".action.approval.minApprovers", Message: "minApprovers must be >= 1"})
			}
			if rule.Action.Approval.TimeoutHours > 168 {
				errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: path + ".action.approval.timeoutHours", Message: "timeoutHours must be <= 168"})
			}
		}

		for j, cond := range rule.Conditions {
			condPath := fmt.Sprintf("%s.conditions[%d]", path, j)
			switch cond.Type {
			case CondComplexity, CondAgent:
				if cond.Type == CondComplexity && (cond.Threshold < 0 || cond.Threshold > 10) {
					errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: condPath, Message: "complexity threshold must be in [0,10]"})
				}
				if cond.Type == CondAgent && (cond.Threshold < 0 || cond.Threshold > 1) {
					errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: condPath, Message: "confidence threshold must be in [0,1]"})
				}
				if cond.Threshold > 7 {
					warnings = append(warnings, ValidationError{Code: CodeHighComplexity, Path: condPath, Message: "threshold above 7 rarely matches in practice"})
				}
			case CondFilePattern, CondRepository, CondBranch, CondAuthor:
				if len(cond.Patterns) == 0 {
					errs = append(errs, ValidationError{Code: CodeInvalidPattern, Path: condPath, Message: "patterns must be non-empty"})
				}
				for _, p := range cond.Patterns {
					if p == "" || p == "***" {
						errs = append(errs, ValidationError{Code: CodeInvalidPattern, Path: condPath, Message: fmt.Sprintf("invalid glob pattern %q", p)})
					}
				}
			case CondTimeWindow:
				if cond.StartHour != nil && cond.EndHour != nil && *cond.StartHour >= *cond.EndHour {
					errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: condPath, Message: "time_window startHour must be < endHour"})
				}
			case CondLabel:
				if len(cond.Labels) == 0 {
					errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: condPath, Message: "label condition needs at least one label"})
				}
			case CondCustom:
				if cond.Expression == "" {
					errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: condPath, Message: "custom condition needs a non-empty expression"})
				} else if _, err := compileCEL(cond.Expression); err != nil {
					errs = append(errs, ValidationError{Code: CodeInvalidFieldValue, Path: condPath, Message: "custom expression failed to compile: " + err.Error()})
				}
			}
		}
	}

	if doc.Scope == ScopeGlobal && doc.ParentPolicyID != "" {
		errs = append(errs, ValidationError{Code: CodeInvalidParentScope, Path: "parentPolicyId", Message: "global-scope policies must not set parentPolicyId"})
	}

	return errs, warnings, infos
}
