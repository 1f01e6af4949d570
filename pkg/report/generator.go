package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/agentgov/governance-core/pkg/evidence"
	"github.com/agentgov/governance-core/pkg/hashing"
)

const (
	defaultMaxEvidencePerControl = 20
	minMaxEvidencePerControl     = 1
	maxMaxEvidencePerControl     = 100
)

// Signer produces a detached signature over a content hash, satisfied
// by *hashing.KeySigner.
type Signer interface {
	Sign(contentHashHex string) (string, error)
}

// Store is the slice of pkg/reportstore's contract the generator
// needs to persist a freshly generated report.
type Store interface {
	Save(ctx context.Context, tenantID string, r Report) (Report, error)
}

// GeneratorConfig wires the generator's collaborators.
type GeneratorConfig struct {
	Registry    *Registry
	Evidence    evidence.Collector
	Store       Store
	Signer      Signer
	SignKeyID   string
	SignAlgo    string
	HashAlgo    hashing.Algorithm
	now         func() time.Time
}

// Generator implements the §4.K generate(request) pipeline.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator returns a Generator. A nil cfg.Registry is replaced by
// NewRegistry(); cfg.Evidence/Store/Signer may be nil to skip the
// corresponding step.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.HashAlgo == "" {
		cfg.HashAlgo = hashing.SHA256
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Generator{cfg: cfg}
}

// Generate runs the 8-step compliance report pipeline.
func (g *Generator) Generate(ctx context.Context, req Request) (Report, error) {
	if err := g.validate(req); err != nil {
		return Report{}, err
	}

	template, controls, err := g.buildControlList(req)
	if err != nil {
		return Report{}, err
	}

	evidenceByControl := map[string][]evidence.CollectedEvidence{}
	if req.CollectEvidence && g.cfg.Evidence != nil {
		evidenceCap := req.MaxEvidencePerControl
		if evidenceCap == 0 {
			evidenceCap = defaultMaxEvidencePerControl
		}
		if evidenceCap < minMaxEvidencePerControl {
			evidenceCap = minMaxEvidencePerControl
		}
		if evidenceCap > maxMaxEvidencePerControl {
			evidenceCap = maxMaxEvidencePerControl
		}

		controlIDs := make([]string, len(controls))
		for i, c := range controls {
			controlIDs[i] = c.ID
		}
		byControl, err := g.cfg.Evidence.CollectForControls(ctx, req.TenantID, controlIDs, evidence.Period{
			Start: req.Period.Start, End: req.Period.End,
		})
		if err != nil {
			return Report{}, fmt.Errorf("report: collect evidence: %w", err)
		}
		for id, items := range byControl {
			if len(items) > evidenceCap {
				items = items[:evidenceCap]
			}
			evidenceByControl[id] = items
		}
	}

	results := make([]ControlResult, 0, len(controls))
	for _, c := range controls {
		ev := evidenceByControl[c.ID]
		status := deriveControlStatus(c, ev, req.ControlOverrides[c.ID])
		ids := make([]string, len(ev))
		for i, e := range ev {
			ids[i] = e.ID
		}
		results = append(results, ControlResult{
			Control:       c,
			Status:        status,
			EvidenceCount: len(ev),
			EvidenceIDs:   ids,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Control.ID < results[j].Control.ID })

	summary := computeSummary(results)

	now := g.cfg.now().UTC()
	report := Report{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		Organization: req.Organization,
		Framework:    req.Framework,
		Title:        template.TitleFor(req.Organization),
		Scope:        template.ScopeFor(req.Organization),
		Period:       req.Period,
		Controls:     results,
		Summary:      summary,
		OutputFormat: req.OutputFormat,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
		Tags:         []string{string(req.Framework)},
	}

	if err := g.render(&report); err != nil {
		return Report{}, err
	}

	if g.cfg.Signer != nil {
		if err := g.sign(&report); err != nil {
			return Report{}, err
		}
		report.Status = StatusApproved
	}
	if req.StatusOverride != nil {
		report.Status = *req.StatusOverride
	}

	if g.cfg.Store != nil {
		persisted, err := g.cfg.Store.Save(ctx, req.TenantID, report)
		if err != nil {
			return Report{}, fmt.Errorf("report: persist: %w", err)
		}
		return persisted, nil
	}
	return report, nil
}

func (g *Generator) validate(req Request) error {
	if req.TenantID == "" {
		return ValidationError{Code: CodeInvalidFieldValue, Message: "tenantId is required"}
	}
	if req.Organization == "" {
		return ValidationError{Code: CodeInvalidFieldValue, Message: "organization is required"}
	}
	if req.Framework == "" {
		return ValidationError{Code: CodeUnknownFramework, Message: "framework is required"}
	}
	if req.Framework == FrameworkCustom && (req.CustomFramework == nil || len(req.CustomFramework.Controls) == 0) {
		return ValidationError{Code: CodeCustomFrameworkRequired, Message: "customFramework with at least one control is required for framework=custom"}
	}
	if req.Period.Start.IsZero() || req.Period.End.IsZero() || !req.Period.Start.Before(req.Period.End) {
		return ValidationError{Code: CodeInvalidPeriod, Message: "period.start must precede period.end"}
	}
	if req.MaxEvidencePerControl != 0 && (req.MaxEvidencePerControl < minMaxEvidencePerControl || req.MaxEvidencePerControl > maxMaxEvidencePerControl) {
		return ValidationError{Code: CodeInvalidEvidenceCap, Message: "maxEvidencePerControl must be in [1,100]"}
	}
	return nil
}

func (g *Generator) buildControlList(req Request) (Template, []Control, error) {
	var template Template
	if req.Framework == FrameworkCustom {
		template = Template{
			Framework:   FrameworkCustom,
			Name:        req.CustomFramework.Name,
			ScopeFormat: "Controls in the " + req.CustomFramework.Name + " custom framework for %s.",
			Controls:    req.CustomFramework.Controls,
		}
	} else {
		t, err := g.cfg.Registry.Get(req.Framework)
		if err != nil {
			return Template{}, nil, ValidationError{Code: CodeUnknownFramework, Message: err.Error()}
		}
		template = t
	}

	controls := template.Controls
	if len(req.IncludeControlIDs) > 0 {
		controls = filterControls(controls, func(c Control) bool { return containsID(req.IncludeControlIDs, c.ID) })
	}
	if len(req.ExcludeControlIDs) > 0 {
		controls = filterControls(controls, func(c Control) bool { return !containsID(req.ExcludeControlIDs, c.ID) })
	}
	return template, controls, nil
}

func filterControls(in []Control, keep func(Control) bool) []Control {
	out := make([]Control, 0, len(in))
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// deriveControlStatus applies spec.md §4.K step 4. override, when
// non-empty, takes precedence (an open remediation task or an
// approved compensating control).
func deriveControlStatus(c Control, ev []evidence.CollectedEvidence, override ControlStatus) ControlStatus {
	if override != "" {
		return override
	}
	if len(ev) == 0 {
		if c.Required {
			return ControlNotEvaluated
		}
		return ControlNotApplicable
	}

	var sum float64
	allVerified := true
	for _, e := range ev {
		sum += e.RelevanceScore
		if e.VerificationMethod != "" && e.RelevanceScore == 0 {
			allVerified = false
		}
	}
	avg := sum / float64(len(ev))

	switch {
	case allVerified && avg >= 0.85:
		return ControlCompliant
	case !allVerified:
		return ControlNonCompliant
	default:
		return ControlPartiallyCompliant
	}
}

func computeSummary(results []ControlResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ControlCompliant:
			s.Compliant++
		case ControlPartiallyCompliant:
			s.PartiallyCompliant++
		case ControlNonCompliant:
			s.NonCompliant++
		case ControlNotEvaluated:
			s.NotEvaluated++
		case ControlNotApplicable:
			s.NotApplicable++
		case ControlCompensating:
			s.Compensating++
		}
	}
	denominator := s.Total - s.NotApplicable
	if denominator > 0 {
		s.ComplianceRate = float64(s.Compliant) / float64(denominator)
	}
	return s
}

func (g *Generator) sign(report *Report) error {
	canonical, err := hashing.Canonical(report)
	if err != nil {
		return fmt.Errorf("report: canonicalize for signing: %w", err)
	}
	contentHash, err := hashing.Hash(canonical, g.cfg.HashAlgo)
	if err != nil {
		return fmt.Errorf("report: hash content: %w", err)
	}
	sig, err := g.cfg.Signer.Sign(contentHash)
	if err != nil {
		return fmt.Errorf("report: sign: %w", err)
	}
	report.Signature = &Signature{
		Algorithm:   g.cfg.SignAlgo,
		KeyID:       g.cfg.SignKeyID,
		ContentHash: contentHash,
		Signature:   sig,
		SignedAt:    g.cfg.now().UTC(),
	}
	return nil
}
