// Package incident turns resolved or dismissed violations into golden
// regression tasks, per spec.md §4.I.
package incident

import (
	"time"

	"github.com/agentgov/governance-core/pkg/violation"
)

// SLA records the service-level outcome of handling a violation.
type SLA struct {
	TargetHours int
	ActualHours float64
	WithinSLA   bool
}

// ExpectedOutput is the scoring contract for a GoldenTask.
type ExpectedOutput struct {
	MinScore        int
	RequiredKeywords []string
	RequiredActions  []string
}

// GoldenTask is a regression-test fixture synthesised from a resolved
// violation, spec.md §3 GoldenTask.
type GoldenTask struct {
	ID             string
	Workflow       string
	SourceViolationID string
	SourceType     violation.Type
	SourceSeverity violation.Severity
	Input          map[string]any
	ExpectedOutput ExpectedOutput
	SLA            SLA
	Tags           []string
	ResolutionNotes string
	GeneratedAt    time.Time
}

// GenerationResult reports the outcome of GenerateFromViolation.
type GenerationResult struct {
	Generated bool
	Reason    string
	Task      *GoldenTask
	YAML      string
}

// OnTaskGenerated is invoked after a task is validated and rendered.
type OnTaskGenerated func(task GoldenTask, yaml string)

// WorkflowMapping maps a violation type to the workflow its golden
// task exercises. Defaults per spec.md §4.I.
var DefaultWorkflowMapping = map[violation.Type]string{
	violation.TypePolicyDenied:     "policy-enforcement",
	violation.TypeApprovalBypassed: "approval-gate",
	violation.TypeLimitExceeded:    "rate-limiter",
	violation.TypeAnomalyDetected:  "anomaly-detection",
}

// requiredKeywordsByType supplies step 4's "required keywords chosen
// by type" rule.
var requiredKeywordsByType = map[violation.Type][]string{
	violation.TypePolicyDenied:     {"policy", "deny"},
	violation.TypeApprovalBypassed: {"approval"},
	violation.TypeLimitExceeded:    {"rate", "limit"},
	violation.TypeAnomalyDetected:  {"anomaly"},
}
