package incident

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentgov/governance-core/pkg/violation"
)

// Config tunes the generator, spec.md §4.I.
type Config struct {
	MinimumSeverity violation.Severity
	TargetHours     int
	WorkflowMapping map[violation.Type]string
}

// DefaultConfig returns spec.md §4.I's named defaults.
func DefaultConfig() Config {
	return Config{
		MinimumSeverity: violation.SeverityMedium,
		TargetHours:     48,
		WorkflowMapping: DefaultWorkflowMapping,
	}
}

// Generator produces GoldenTasks from resolved/dismissed violations,
// deduplicating by violation id for its own lifetime.
type Generator struct {
	cfg      Config
	onTask   OnTaskGenerated

	mu       sync.Mutex
	generated map[string]bool

	now func() time.Time
}

func NewGenerator(cfg Config, onTask OnTaskGenerated) *Generator {
	if cfg.WorkflowMapping == nil {
		cfg.WorkflowMapping = DefaultWorkflowMapping
	}
	if cfg.TargetHours <= 0 {
		cfg.TargetHours = 48
	}
	return &Generator{
		cfg:       cfg,
		onTask:    onTask,
		generated: make(map[string]bool),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GenerateFromViolation implements spec.md §4.I's five-step pipeline.
func (g *Generator) GenerateFromViolation(v violation.Violation) (GenerationResult, error) {
	if v.Status != violation.StatusResolved && v.Status != violation.StatusDismissed {
		return GenerationResult{Generated: false, Reason: "violation not resolved or dismissed"}, nil
	}
	if v.Severity < g.cfg.MinimumSeverity {
		return GenerationResult{Generated: false, Reason: "below minimum severity"}, nil
	}

	g.mu.Lock()
	if g.generated[v.ID] {
		g.mu.Unlock()
		return GenerationResult{Generated: false, Reason: "already generated"}, nil
	}
	g.generated[v.ID] = true
	g.mu.Unlock()

	workflow, ok := g.cfg.WorkflowMapping[v.Type]
	if !ok {
		workflow = "unclassified"
	}

	actualHours := v.Metadata.UpdatedAt.Sub(v.DetectedAt).Hours()
	sla := SLA{
		TargetHours: g.cfg.TargetHours,
		ActualHours: actualHours,
		WithinSLA:   actualHours <= float64(g.cfg.TargetHours),
	}

	task := GoldenTask{
		ID:                "incident-" + v.ID,
		Workflow:          workflow,
		SourceViolationID: v.ID,
		SourceType:        v.Type,
		SourceSeverity:    v.Severity,
		Input: map[string]any{
			"actorId":    v.Actor.ID,
			"resourceId": v.Resource.ID,
			"action":     v.Action,
			"summary":    v.Summary,
			"details":    map[string]any(v.Details),
		},
		ExpectedOutput: ExpectedOutput{
			MinScore:         80,
			RequiredKeywords: requiredKeywordsByType[v.Type],
		},
		SLA:             sla,
		Tags:            []string{"incident-regression", string(v.Type)},
		ResolutionNotes: v.Metadata.ResolutionNotes,
		GeneratedAt:     g.now(),
	}

	if err := validateTask(task); err != nil {
		return GenerationResult{}, fmt.Errorf("incident: task validation: %w", err)
	}

	rendered, err := renderYAML(task)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("incident: render yaml: %w", err)
	}

	if g.onTask != nil {
		g.onTask(task, rendered)
	}

	return GenerationResult{Generated: true, Task: &task, YAML: rendered}, nil
}

func validateTask(task GoldenTask) error {
	if task.ID == "" {
		return fmt.Errorf("task id must be set")
	}
	if task.Workflow == "" {
		return fmt.Errorf("task workflow must be set")
	}
	if task.ExpectedOutput.MinScore <= 0 || task.ExpectedOutput.MinScore > 100 {
		return fmt.Errorf("expectedOutput.minScore must be in (0,100]")
	}
	hasRegressionTag := false
	for _, tag := range task.Tags {
		if tag == "incident-regression" {
			hasRegressionTag = true
		}
	}
	if !hasRegressionTag {
		return fmt.Errorf("tags must include incident-regression")
	}
	return nil
}

// goldenTaskYAML is the on-disk shape rendered for a GoldenTask; field
// names follow the teacher's config.profile_loader.go snake_case
// convention for hand-authored YAML fixtures.
type goldenTaskYAML struct {
	ID       string         `yaml:"id"`
	Workflow string         `yaml:"workflow"`
	Source   sourceYAML     `yaml:"source"`
	Input    map[string]any `yaml:"input"`
	Expected expectedYAML   `yaml:"expected_output"`
	Tags     []string       `yaml:"tags"`
}

type sourceYAML struct {
	ViolationID string `yaml:"violation_id"`
	Type        string `yaml:"type"`
	Severity    string `yaml:"severity"`
}

type expectedYAML struct {
	MinScore         int      `yaml:"min_score"`
	RequiredKeywords []string `yaml:"required_keywords,omitempty"`
	RequiredActions  []string `yaml:"required_actions,omitempty"`
}

func renderYAML(task GoldenTask) (string, error) {
	doc := goldenTaskYAML{
		ID:       task.ID,
		Workflow: task.Workflow,
		Source: sourceYAML{
			ViolationID: task.SourceViolationID,
			Type:        string(task.SourceType),
			Severity:    task.SourceSeverity.String(),
		},
		Input: task.Input,
		Expected: expectedYAML{
			MinScore:         task.ExpectedOutput.MinScore,
			RequiredKeywords: task.ExpectedOutput.RequiredKeywords,
			RequiredActions:  task.ExpectedOutput.RequiredActions,
		},
		Tags: task.Tags,
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}

	header := fmt.Sprintf("# sla: targetHours=%d actualHours=%.2f withinSla=%v\n# resolutionNotes: %s\n",
		task.SLA.TargetHours, task.SLA.ActualHours, task.SLA.WithinSLA, task.ResolutionNotes)

	return header + string(body), nil
}
