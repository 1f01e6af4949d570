package auditstore

import (
	"fmt"

	"github.com/agentgov/governance-core/pkg/hashing"
)

// hashableEntry is Entry with the fields excluded from content hashing
// per spec.md §4.A: chain.contentHash, chain.signature, contextHash,
// receivedAt. Chain.Sequence/PreviousHash/Algorithm/ComputedAt remain
// part of the hashed payload, since they are set before hashing and
// are part of what a tampered entry would need to alter undetected.
type hashableEntry struct {
	ID            string         `json:"id"`
	SchemaVersion string         `json:"schemaVersion"`
	Timestamp     string         `json:"timestamp"`
	Actor         Actor          `json:"actor"`
	Action        Action         `json:"action"`
	Resource      *Resource      `json:"resource,omitempty"`
	Outcome       string         `json:"outcome"`
	Context       Context        `json:"context"`
	Chain         hashableChain  `json:"chain"`
	Tags          []string       `json:"tags,omitempty"`
	HighRisk      bool           `json:"highRisk"`
	Compliance    []string       `json:"compliance,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

type hashableChain struct {
	Sequence     uint64            `json:"sequence"`
	PreviousHash *string           `json:"previousHash"`
	Algorithm    hashing.Algorithm `json:"algorithm"`
	ComputedAt   string            `json:"computedAt"`
}

// ContentHash computes chain.contentHash for entry per spec.md §3/§4.A.
func ContentHash(e Entry) (string, error) {
	algo := e.Chain.Algorithm
	if algo == "" {
		algo = hashing.SHA256
	}
	h := hashableEntry{
		ID:            e.ID,
		SchemaVersion: e.SchemaVersion,
		Timestamp:     e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		Actor:         e.Actor,
		Action:        e.Action,
		Resource:      e.Resource,
		Outcome:       e.Outcome,
		Context:       e.Context,
		Chain: hashableChain{
			Sequence:     e.Chain.Sequence,
			PreviousHash: e.Chain.PreviousHash,
			Algorithm:    algo,
			ComputedAt:   e.Chain.ComputedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		},
		Tags:       e.Tags,
		HighRisk:   e.HighRisk,
		Compliance: e.Compliance,
		Details:    e.Details,
	}
	digest, err := hashing.HashValue(h, algo)
	if err != nil {
		return "", fmt.Errorf("auditstore: content hash: %w", err)
	}
	return digest, nil
}

// contextHashFields is the fixed field list for ContextHash per spec.md §6.
var contextHashFields = []string{"tenantId", "orgId", "repoId", "runId", "traceId"}

// ComputeContextHash summarises exactly the fields in contextHashFields
// that are set (non-empty) on ctx.
func ComputeContextHash(ctx Context, algo hashing.Algorithm) (ContextHash, error) {
	present := map[string]string{}
	if ctx.TenantID != "" {
		present["tenantId"] = ctx.TenantID
	}
	if ctx.OrgID != "" {
		present["orgId"] = ctx.OrgID
	}
	if ctx.RepoID != "" {
		present["repoId"] = ctx.RepoID
	}
	if ctx.RunID != "" {
		present["runId"] = ctx.RunID
	}
	if ctx.TraceID != "" {
		present["traceId"] = ctx.TraceID
	}

	fields := make([]string, 0, len(present))
	for _, f := range contextHashFields {
		if _, ok := present[f]; ok {
			fields = append(fields, f)
		}
	}

	value, err := hashing.HashValue(present, algo)
	if err != nil {
		return ContextHash{}, fmt.Errorf("auditstore: context hash: %w", err)
	}
	return ContextHash{Algorithm: algo, Value: value, Fields: fields}, nil
}
