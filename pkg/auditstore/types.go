// Package auditstore defines the tamper-evident audit entry model and an
// append-only store contract over it, with an in-memory backend always
// available and an optional Postgres-backed one for durable deployments.
package auditstore

import (
	"errors"
	"time"

	"github.com/agentgov/governance-core/pkg/hashing"
)

// ActorKind enumerates who performed an audited action.
type ActorKind string

const (
	ActorUser      ActorKind = "user"
	ActorAgent     ActorKind = "agent"
	ActorService   ActorKind = "service"
	ActorGitHubApp ActorKind = "github_app"
	ActorAPIKey    ActorKind = "api_key"
)

// Actor identifies who (or what) requested the audited action.
type Actor struct {
	Kind        ActorKind `json:"kind"`
	ID          string    `json:"id"`
	OnBehalfOf  string    `json:"onBehalfOf,omitempty"`
}

// Action describes the action being audited.
type Action struct {
	Category    string `json:"category"`
	Type        string `json:"type"` // dotted, e.g. "repo.push"
	Sensitive   bool   `json:"sensitive"`
	Description string `json:"description,omitempty"`
}

// Resource is the optional target of an action.
type Resource struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Context carries trace/correlation identifiers. Only set fields are
// included in ContextHash; the zero value of every field means "unset".
type Context struct {
	TenantID    string `json:"tenantId"`
	OrgID       string `json:"orgId,omitempty"`
	RepoID      string `json:"repoId,omitempty"`
	Environment string `json:"environment,omitempty"`
	TraceID     string `json:"traceId,omitempty"`
	SpanID      string `json:"spanId,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
	RunID       string `json:"runId,omitempty"`
	CandidateID string `json:"candidateId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	CausationID string `json:"causationId,omitempty"`
	Service     string `json:"service,omitempty"`
}

// ContextHash summarises exactly the fields named in spec.md §6:
// tenantId, orgId, repoId, runId, traceId.
type ContextHash struct {
	Algorithm hashing.Algorithm `json:"algorithm"`
	Value     string            `json:"value"`
	Fields    []string          `json:"fields"`
}

// ChainLink is the hash-chain metadata attached to every entry.
type ChainLink struct {
	Sequence     uint64            `json:"sequence"`
	PreviousHash *string           `json:"previousHash"`
	ContentHash  string            `json:"contentHash"`
	Algorithm    hashing.Algorithm `json:"algorithm"`
	ComputedAt   time.Time         `json:"computedAt"`
	Signature    string            `json:"signature,omitempty"`
}

// Entry is one immutable record in the tamper-evident audit log.
type Entry struct {
	ID            string         `json:"id"`
	SchemaVersion string         `json:"schemaVersion"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         Actor          `json:"actor"`
	Action        Action         `json:"action"`
	Resource      *Resource      `json:"resource,omitempty"`
	Outcome       string         `json:"outcome"`
	Context       Context        `json:"context"`
	Chain         ChainLink      `json:"chain"`
	ContextHash   *ContextHash   `json:"contextHash,omitempty"`
	ReceivedAt    *time.Time     `json:"receivedAt,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	HighRisk      bool           `json:"highRisk"`
	Compliance    []string       `json:"compliance,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// LogIdentity names a single (tenant, scope, scopeId) log.
type LogIdentity struct {
	TenantID string
	Scope    string // global|org|repo|branch
	ScopeID  string
}

// LogMeta is the live metadata of one audit log.
type LogMeta struct {
	Identity       LogIdentity
	LatestSequence uint64
	HeadHash       string
	EntryCount     uint64
	Sealed         bool
	SealedAt       *time.Time
	SealReason     string
}

var (
	ErrLogSealed          = errors.New("ERR_LOG_SEALED")
	ErrChainMismatch      = errors.New("ERR_CHAIN_MISMATCH")
	ErrContentHashMismatch = errors.New("ERR_CONTENT_HASH_MISMATCH")
	ErrSequenceGap        = errors.New("ERR_SEQUENCE_GAP")
	ErrEntryNotFound      = errors.New("auditstore: entry not found")
	ErrLogNotFound        = errors.New("auditstore: log not found")
)

// QueryFilter selects a subset of entries from one log.
type QueryFilter struct {
	Category    string
	Severity    string
	ActorID     string
	EventType   string
	Since       *time.Time
	Until       *time.Time
	SeqStart    uint64
	SeqEnd      uint64
	HighRiskOnly bool
	Tags        []string
	Substring   string
	Offset      int
	Limit       int
	Descending  bool
}

// VerificationResult is the outcome of verifying a log's hash chain.
type VerificationResult struct {
	Valid            bool
	EntriesVerified  int
	FirstInvalidEntry uint64
	InvalidReason    string
	VerifiedAt       time.Time
	LastEntryHash    string
}
