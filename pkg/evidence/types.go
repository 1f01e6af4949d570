// Package evidence implements the evidence-collector contract
// consumed by the report generator, spec.md §4.J.
package evidence

import (
	"context"
	"time"
)

// SourceKind names where a piece of evidence came from.
type SourceKind string

const (
	SourceAuditLog        SourceKind = "audit_log"
	SourceViolation       SourceKind = "violation"
	SourcePolicyDecision  SourceKind = "policy_decision"
	SourceAttestation     SourceKind = "attestation"
)

// CollectedEvidence is one unit of evidence supporting one or more
// compliance controls.
type CollectedEvidence struct {
	ID                 string
	Source             SourceKind
	ControlIDs         []string
	RelevanceScore     float64
	Summary            string
	Payload            map[string]any
	CollectedAt        time.Time
	VerificationMethod string
	VerifiedAt         *time.Time
}

// Period bounds an evidence-collection window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Query parameterizes Collect.
type Query struct {
	TenantID   string
	ControlIDs []string
	Period     Period
	Sources    []SourceKind // empty means "all"
}

// Collector is the contract report generation relies on (spec.md §4.J).
type Collector interface {
	Collect(ctx context.Context, query Query) ([]CollectedEvidence, error)
	CollectForControl(ctx context.Context, tenantID, control string, period Period) ([]CollectedEvidence, error)
	CollectForControls(ctx context.Context, tenantID string, controls []string, period Period) (map[string][]CollectedEvidence, error)
}
