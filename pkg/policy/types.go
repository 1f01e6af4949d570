// Package policy implements the governance policy schema, its
// validator, and the evaluation engine that turns a request plus a
// resolved policy set into an allow/deny/require-approval/notify/
// log-only/warn decision.
package policy

import "time"

// SchemaVersion enumerates supported PolicyDocument versions.
type SchemaVersion string

const (
	V1_0 SchemaVersion = "1.0"
	V1_1 SchemaVersion = "1.1"
	V2_0 SchemaVersion = "2.0"
)

// Scope names the applicability level of a policy document.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeOrg    Scope = "org"
	ScopeRepo   Scope = "repo"
	ScopeBranch Scope = "branch"
)

// Inheritance names how a policy composes with its parent.
type Inheritance string

const (
	InheritOverride Inheritance = "override"
	InheritExtend   Inheritance = "extend"
	InheritStrict   Inheritance = "strict"
)

// Effect is the outcome a PolicyAction produces when its rule matches.
type Effect string

const (
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectRequireApproval Effect = "require_approval"
	EffectNotify          Effect = "notify"
	EffectLogOnly         Effect = "log_only"
	EffectWarn            Effect = "warn"
)

// ApprovalConfig governs require_approval actions.
type ApprovalConfig struct {
	MinApprovers      int      `json:"minApprovers"`
	RequiredRoles     []string `json:"requiredRoles,omitempty"`
	TimeoutHours      int      `json:"timeoutHours,omitempty"`
	AllowSelfApproval bool     `json:"allowSelfApproval"`
}

// NotificationConfig governs notify actions.
type NotificationConfig struct {
	Channels []string `json:"channels,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Action is the terminal effect of a matched rule.
type Action struct {
	Effect          Effect              `json:"effect"`
	Reason          string              `json:"reason,omitempty"`
	Approval        *ApprovalConfig     `json:"approval,omitempty"`
	Notification    *NotificationConfig `json:"notification,omitempty"`
	ContinueOnMatch bool                `json:"continueOnMatch"`
}

// ConditionType tags the PolicyCondition variant.
type ConditionType string

const (
	CondComplexity  ConditionType = "complexity"
	CondFilePattern ConditionType = "file_pattern"
	CondAuthor      ConditionType = "author"
	CondTimeWindow  ConditionType = "time_window"
	CondRepository  ConditionType = "repository"
	CondBranch      ConditionType = "branch"
	CondLabel       ConditionType = "label"
	CondAgent       ConditionType = "agent"
	CondCustom      ConditionType = "custom"
)

// ComplexityOperator is one of the five comparison operators allowed
// for complexity and agent-confidence conditions.
type ComplexityOperator string

const (
	OpLT  ComplexityOperator = "lt"
	OpLTE ComplexityOperator = "lte"
	OpEQ  ComplexityOperator = "eq"
	OpGTE ComplexityOperator = "gte"
	OpGT  ComplexityOperator = "gt"
)

// LabelMatch names the label-set match mode.
type LabelMatch string

const (
	LabelAny  LabelMatch = "any"
	LabelAll  LabelMatch = "all"
	LabelNone LabelMatch = "none"
)

// TimeWindowMode is whether a time_window condition matches inside or
// outside the configured window.
type TimeWindowMode string

const (
	TimeDuring  TimeWindowMode = "during"
	TimeOutside TimeWindowMode = "outside"
)

// Condition is a tagged-variant predicate evaluated against a Request.
// Exactly the fields relevant to Type are populated.
type Condition struct {
	Type ConditionType `json:"type"`

	// complexity / agent
	Operator   ComplexityOperator `json:"operator,omitempty"`
	Threshold  float64            `json:"threshold,omitempty"`

	// file_pattern / repository / branch / author: glob or regex-lite patterns
	Patterns []string `json:"patterns,omitempty"`

	// time_window
	StartHour *int           `json:"startHour,omitempty"`
	EndHour   *int           `json:"endHour,omitempty"`
	Mode      TimeWindowMode `json:"mode,omitempty"`

	// label
	Labels     []string   `json:"labels,omitempty"`
	LabelMatch LabelMatch `json:"labelMatch,omitempty"`

	// custom
	Expression string `json:"expression,omitempty"`
}

// Rule is one ordered, conditional policy rule.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Priority   int         `json:"priority"`
	Conditions []Condition `json:"conditions"`
	Action     Action      `json:"action"`
}

// Document is a full policy document: spec.md §3 PolicyDocument.
type Document struct {
	Version        SchemaVersion  `json:"version"`
	Name           string         `json:"name"`
	Scope          Scope          `json:"scope"`
	ScopeTarget    string         `json:"scopeTarget,omitempty"`
	Inheritance    Inheritance    `json:"inheritance"`
	ParentPolicyID string         `json:"parentPolicyId,omitempty"`
	Rules          []Rule         `json:"rules"`
	DefaultAction  Action         `json:"defaultAction"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RiskTier is the totally ordered R0..R4 scale from spec.md §3.
type RiskTier int

const (
	R0 RiskTier = iota
	R1
	R2
	R3
	R4
)

// TierPolicy dictates what a given RiskTier requires and allows.
type TierPolicy struct {
	Tier                RiskTier
	RequiresApproval    bool
	RequiresAudit       bool
	SecretsScanning     bool
	TamperEvidentLogging bool
	ToolAllowlist       []string // nil/empty means "all"
	BlockedOperations   []string
}

// OperationClassification binds an operation to its minimum tier.
type OperationClassification struct {
	OperationType      string
	MinimumTier        RiskTier
	Category           string
	RequiredApprovalScopes []string
	AuditFields        []string
}

// Request is a PolicyEvaluationRequest, spec.md §6.
type Request struct {
	Actor      string
	Action     string
	Resource   RequestResource
	Context    RequestContext
	HasApproval bool
	Approvals   []Approval

	// AgentConfidence is the calling agent's self-reported confidence
	// in [0,1], compared by "agent" conditions.
	AgentConfidence float64

	// risk-tier overlay inputs
	CurrentTier    RiskTier
	OperationType  string
	TenantMaxTier  RiskTier
	PolicyMaxTier  RiskTier
}

// RequestResource is the resource portion of a Request.
type RequestResource struct {
	Repo       string
	Branch     string
	Files      []string
	Labels     []string
	Complexity float64
}

// RequestContext is the context portion of a Request.
type RequestContext struct {
	Source    string
	Timestamp time.Time
	RequestID string
}

// Approval records one grant against an ApprovalConfig.
type Approval struct {
	ApproverID   string
	ApproverRole string
	GrantedAt    time.Time
	SelfApproval bool
}

// Result is a PolicyEvaluationResult, spec.md §6.
type Result struct {
	Allowed         bool
	Effect          Effect
	Reason          string
	MatchedRule     string
	RequiredActions []string
	Metadata        ResultMetadata
}

// ResultMetadata carries evaluation bookkeeping.
type ResultMetadata struct {
	EvaluatedAt       time.Time
	EvaluationTimeMs  float64
	RulesEvaluated    int
	PoliciesEvaluated int
	ConditionTrace    []string
}
