package violation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentgov/governance-core/pkg/hashing"
)

// OnViolationDetected and OnPatternDetected are the detector's
// callback hooks, invoked synchronously outside the aggregation lock
// per spec.md §5 "callbacks are invoked outside the lock".
type OnViolationDetected func(v Violation)
type OnPatternDetected func(p Pattern)

// Config tunes the detection pipeline, spec.md §4.G.
type Config struct {
	WindowMs             int64
	MinViolationIntervalMs int64
	AggregationWindowMs  int64
	PatternThreshold     int
	AutoEscalateCritical bool
}

// DefaultConfig matches the defaults named in spec.md §4.G.
func DefaultConfig() Config {
	return Config{
		WindowMs:               60_000,
		MinViolationIntervalMs: 60_000,
		AggregationWindowMs:    5 * 60_000,
		PatternThreshold:       5,
		AutoEscalateCritical:   true,
	}
}

type bucketKey struct {
	actor, resource string
	typ             Type
}

type bucket struct {
	count     int
	windowEnd time.Time
	emitted   bool
}

// Detector implements the violation-detection pipeline. It is safe
// for concurrent use.
type Detector struct {
	cfg     Config
	store   Store
	onViolation OnViolationDetected
	onPattern   OnPatternDetected

	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	now func() time.Time
}

// NewDetector builds a Detector. onViolation/onPattern may be nil.
func NewDetector(store Store, cfg Config, onViolation OnViolationDetected, onPattern OnPatternDetected) *Detector {
	return &Detector{
		cfg:         cfg,
		store:       store,
		onViolation: onViolation,
		onPattern:   onPattern,
		buckets:     make(map[bucketKey]*bucket),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Detect runs the full pipeline from spec.md §4.G over in.
func (d *Detector) Detect(ctx context.Context, in DetectionInput) (DetectionResult, error) {
	now := d.now()
	windowMs := d.cfg.WindowMs
	if windowMs <= 0 {
		windowMs = 60_000
	}

	fp, err := fingerprint(in, windowMs, now)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("violation: fingerprint: %w", err)
	}

	minInterval := d.cfg.MinViolationIntervalMs
	if minInterval <= 0 {
		minInterval = 60_000
	}
	notBefore := now.Add(-time.Duration(minInterval) * time.Millisecond)

	existing, err := d.store.FindByFingerprint(ctx, in.TenantID, fp, notBefore)
	if err != nil {
		return DetectionResult{}, err
	}
	if existing != nil {
		return DetectionResult{Violation: existing, Created: false, Deduplicated: true}, nil
	}

	severity := defaultSeverity(in)
	if in.SeverityOverride != nil {
		severity = *in.SeverityOverride
	}

	status := StatusDetected
	if d.cfg.AutoEscalateCritical && severity == SeverityCritical {
		status = StatusEscalated
	}

	candidate := Violation{
		TenantID:    in.TenantID,
		Type:        in.Type,
		Severity:    severity,
		Source:      in.Source,
		Status:      status,
		Actor:       in.Actor,
		Resource:    in.Resource,
		Action:      in.Action,
		Summary:     in.Summary,
		Details:     in.Details,
		Fingerprint: fp,
		DetectedAt:  now,
		Metadata:    Metadata{CreatedAt: now, UpdatedAt: now},
	}

	created, err := d.store.Create(ctx, candidate)
	if err != nil {
		return DetectionResult{}, err
	}

	if d.onViolation != nil {
		d.onViolation(created)
	}

	result := DetectionResult{Violation: &created, Created: true}
	if pattern := d.aggregate(created, now); pattern != nil {
		result.PatternEmitted = pattern
		if d.onPattern != nil {
			d.onPattern(*pattern)
		}
	}

	return result, nil
}

// fingerprint computes H(tenantId|type|actor.id|resource.id|action.type|ruleOrSignalId|floor(now/windowMs))
// per spec.md §4.G step 1.
func fingerprint(in DetectionInput, windowMs int64, now time.Time) (string, error) {
	bucket := now.UnixMilli() / windowMs
	key := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		in.TenantID, in.Type, in.Actor.ID, in.Resource.ID, in.Action, in.RuleOrSignalID, bucket)
	return hashing.Hash([]byte(key), hashing.SHA256)
}

// defaultSeverity maps a violation type to its default severity per
// spec.md §4.G, factoring in type-specific detail fields.
func defaultSeverity(in DetectionInput) Severity {
	switch in.Type {
	case TypePolicyDenied:
		if ruleSev, ok := in.Details["ruleSeverity"].(string); ok {
			if s, ok := parseSeverity(ruleSev); ok && s > SeverityHigh {
				return s
			}
		}
		return SeverityHigh
	case TypeApprovalBypassed:
		return SeverityCritical
	case TypeLimitExceeded:
		limit, lok := numericDetail(in.Details, "limit")
		actual, aok := numericDetail(in.Details, "actual")
		if lok && aok && limit > 0 && actual >= 2*limit {
			return SeverityHigh
		}
		return SeverityMedium
	case TypeAnomalyDetected:
		confidence, _ := numericDetail(in.Details, "confidence")
		score, _ := numericDetail(in.Details, "score")
		scaled := confidence * score / 100
		if scaled >= 0.75 {
			return SeverityCritical
		}
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func numericDetail(d Details, key string) (float64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseSeverity(s string) (Severity, bool) {
	switch s {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	default:
		return 0, false
	}
}

// aggregate updates the in-memory (actor, resource, type) bucket for
// v and, the first time its count reaches PatternThreshold within the
// current window, returns a Pattern to emit. Further detections in the
// same window keep incrementing count but do not re-emit; a new
// window (rolled over once now passes windowEnd) resets the emitted
// flag, so the pattern can fire again. Called with the detector's own
// mutex, never the store's.
func (d *Detector) aggregate(v Violation, now time.Time) *Pattern {
	threshold := d.cfg.PatternThreshold
	if threshold <= 0 {
		threshold = 5
	}
	windowMs := d.cfg.AggregationWindowMs
	if windowMs <= 0 {
		windowMs = 5 * 60_000
	}

	key := bucketKey{actor: v.Actor.ID, resource: v.Resource.ID, typ: v.Type}

	d.mu.Lock()
	b, ok := d.buckets[key]
	if !ok || now.After(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(time.Duration(windowMs) * time.Millisecond)}
		d.buckets[key] = b
	}
	b.count++
	count := b.count
	windowEnd := b.windowEnd
	shouldEmit := count >= threshold && !b.emitted
	if shouldEmit {
		b.emitted = true
	}
	d.mu.Unlock()

	if !shouldEmit {
		return nil
	}
	return &Pattern{
		GroupKey:        fmt.Sprintf("%s|%s|%s", v.Actor.ID, v.Resource.ID, v.Type),
		Count:           count,
		UniqueActors:    1,
		UniqueResources: 1,
		FirstSeen:       windowEnd.Add(-time.Duration(windowMs) * time.Millisecond),
		LastSeen:        now,
	}
}
