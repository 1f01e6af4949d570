// Package violation implements the violation detector: fingerprinted,
// deduplicated ingestion of policy-denied, approval-bypassed,
// limit-exceeded, and anomaly-detected events, in-memory aggregation
// into patterns, and a pluggable store contract.
package violation

import "time"

// Type enumerates the violation sources spec.md §4.G recognises.
type Type string

const (
	TypePolicyDenied     Type = "policy-denied"
	TypeApprovalBypassed Type = "approval-bypassed"
	TypeLimitExceeded    Type = "limit-exceeded"
	TypeAnomalyDetected  Type = "anomaly-detected"
)

// Severity is totally ordered low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Status is the violation's lifecycle state. MemoryStore.UpdateStatus
// does not check transitions: any status may replace any other,
// including a resolved or dismissed one.
type Status string

const (
	StatusDetected     Status = "detected"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
	StatusEscalated    Status = "escalated"
)

// Actor identifies who or what triggered the detection.
type Actor struct {
	ID   string
	Kind string
}

// Resource identifies what was acted upon.
type Resource struct {
	ID   string
	Type string
}

// Metadata carries lifecycle bookkeeping separate from the violation's
// immutable detection facts.
type Metadata struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	UpdatedBy        string
	ResolutionNotes  string
}

// Details is a loosely typed bag for type-specific data: for
// limit-exceeded it carries {limit, actual}; for anomaly-detected
// {confidence, score}; for policy-denied {ruleId, reason}.
type Details map[string]any

// Violation is one detected event, spec.md §3 Violation.
type Violation struct {
	ID          string
	TenantID    string
	Type        Type
	Severity    Severity
	Source      string
	Status      Status
	Actor       Actor
	Resource    Resource
	Action      string
	Summary     string
	Details     Details
	Fingerprint string
	DetectedAt  time.Time
	Metadata    Metadata
}

// Pattern is a virtual aggregation produced on demand from violation
// storage, spec.md §3 Pattern.
type Pattern struct {
	GroupKey      string
	Count         int
	UniqueActors  int
	UniqueResources int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// DetectionInput is the candidate data passed to Detect; Fingerprint,
// Status, DetectedAt, and Metadata are computed by the detector.
type DetectionInput struct {
	TenantID      string
	Type          Type
	Source        string
	Actor         Actor
	Resource      Resource
	Action        string
	Summary       string
	Details       Details
	RuleOrSignalID string
	// Severity overrides the type's default severity mapping when non-zero-value set explicitly.
	SeverityOverride *Severity
}

// DetectionResult reports whether a new violation was persisted.
type DetectionResult struct {
	Violation     *Violation
	Created       bool
	Deduplicated  bool
	PatternEmitted *Pattern
}

// QueryFilter selects violations for Store.Query.
type QueryFilter struct {
	TenantID   string
	Type       *Type
	Severity   *Severity
	ActorID    string
	ResourceID string
	Since      *time.Time
	Until      *time.Time
	Status     *Status
	Offset     int
	Limit      int
	SortBy     string // "severity" | "time" | "count"
	Descending bool
}

// AggregateGroupBy names the dimension Store.Aggregate groups by.
type AggregateGroupBy string

const (
	GroupByType     AggregateGroupBy = "type"
	GroupByActor    AggregateGroupBy = "actor"
	GroupByResource AggregateGroupBy = "resource"
	GroupBySeverity AggregateGroupBy = "severity"
)

// AggregateFilter configures Store.Aggregate.
type AggregateFilter struct {
	GroupBy   AggregateGroupBy
	StartTime *time.Time
	EndTime   *time.Time
	MinCount  int
}

// RecentFilter configures Store.GetRecent.
type RecentFilter struct {
	Type     *Type
	ActorID  string
	WindowMs int64
}
