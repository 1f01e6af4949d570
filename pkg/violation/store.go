package violation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("violation: not found")
)

// StatusUpdate carries the fields updateStatus may change.
type StatusUpdate struct {
	UpdatedBy       string
	ResolutionNotes string
}

// Store is the violation persistence contract, spec.md §4.G.
type Store interface {
	Create(ctx context.Context, v Violation) (Violation, error)
	Get(ctx context.Context, id string) (Violation, error)
	UpdateStatus(ctx context.Context, id string, status Status, upd StatusUpdate) (Violation, error)
	Query(ctx context.Context, filter QueryFilter) ([]Violation, error)
	Aggregate(ctx context.Context, tenantID string, filter AggregateFilter) ([]Pattern, error)
	GetRecent(ctx context.Context, tenantID string, filter RecentFilter) ([]Violation, error)
	Count(ctx context.Context, filter QueryFilter) (int, error)
	Clear(ctx context.Context, tenantID string) error
	// FindByFingerprint supports dedup lookups independent of Query's
	// richer filter surface.
	FindByFingerprint(ctx context.Context, tenantID, fingerprint string, notBefore time.Time) (*Violation, error)
}

// MemoryStore is an in-memory Store, grounded on the teacher's
// pkg/store/audit_store.go mutex-guarded map idiom.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Violation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Violation)}
}

func (s *MemoryStore) Create(_ context.Context, v Violation) (Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	cp := v
	s.byID[v.ID] = &cp
	return cp, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return Violation{}, ErrNotFound
	}
	return *v, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status, upd StatusUpdate) (Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return Violation{}, ErrNotFound
	}
	v.Status = status
	v.Metadata.UpdatedAt = time.Now().UTC()
	v.Metadata.UpdatedBy = upd.UpdatedBy
	if upd.ResolutionNotes != "" {
		v.Metadata.ResolutionNotes = upd.ResolutionNotes
	}
	return *v, nil
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, tenantID, fingerprint string, notBefore time.Time) (*Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.byID {
		if v.TenantID != tenantID || v.Fingerprint != fingerprint {
			continue
		}
		if v.Status == StatusDismissed {
			continue
		}
		if v.DetectedAt.Before(notBefore) {
			continue
		}
		cp := *v
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Violation
	for _, v := range s.byID {
		if matches(*v, filter) {
			out = append(out, *v)
		}
	}
	sortViolations(out, filter.SortBy, filter.Descending)
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int, error) {
	all, err := s.Query(ctx, QueryFilter{
		TenantID: filter.TenantID, Type: filter.Type, Severity: filter.Severity,
		ActorID: filter.ActorID, ResourceID: filter.ResourceID, Since: filter.Since,
		Until: filter.Until, Status: filter.Status,
	})
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *MemoryStore) Aggregate(_ context.Context, tenantID string, filter AggregateFilter) ([]Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := map[string]*Pattern{}
	actorsByKey := map[string]map[string]bool{}
	resourcesByKey := map[string]map[string]bool{}

	for _, v := range s.byID {
		if v.TenantID != tenantID {
			continue
		}
		if filter.StartTime != nil && v.DetectedAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && v.DetectedAt.After(*filter.EndTime) {
			continue
		}
		key := groupKey(*v, filter.GroupBy)
		p, ok := buckets[key]
		if !ok {
			p = &Pattern{GroupKey: key, FirstSeen: v.DetectedAt, LastSeen: v.DetectedAt}
			buckets[key] = p
			actorsByKey[key] = map[string]bool{}
			resourcesByKey[key] = map[string]bool{}
		}
		p.Count++
		if v.DetectedAt.Before(p.FirstSeen) {
			p.FirstSeen = v.DetectedAt
		}
		if v.DetectedAt.After(p.LastSeen) {
			p.LastSeen = v.DetectedAt
		}
		actorsByKey[key][v.Actor.ID] = true
		resourcesByKey[key][v.Resource.ID] = true
	}

	var out []Pattern
	for key, p := range buckets {
		p.UniqueActors = len(actorsByKey[key])
		p.UniqueResources = len(resourcesByKey[key])
		if p.Count >= filter.MinCount {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupKey < out[j].GroupKey })
	return out, nil
}

func (s *MemoryStore) GetRecent(_ context.Context, tenantID string, filter RecentFilter) ([]Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	windowMs := filter.WindowMs
	if windowMs <= 0 {
		windowMs = 60_000
	}
	cutoff := time.Now().UTC().Add(-time.Duration(windowMs) * time.Millisecond)

	var out []Violation
	for _, v := range s.byID {
		if v.TenantID != tenantID || v.DetectedAt.Before(cutoff) {
			continue
		}
		if filter.Type != nil && v.Type != *filter.Type {
			continue
		}
		if filter.ActorID != "" && v.Actor.ID != filter.ActorID {
			continue
		}
		out = append(out, *v)
	}
	sortViolations(out, "time", true)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenantID == "" {
		s.byID = make(map[string]*Violation)
		return nil
	}
	for id, v := range s.byID {
		if v.TenantID == tenantID {
			delete(s.byID, id)
		}
	}
	return nil
}

func matches(v Violation, f QueryFilter) bool {
	if f.TenantID != "" && v.TenantID != f.TenantID {
		return false
	}
	if f.Type != nil && v.Type != *f.Type {
		return false
	}
	if f.Severity != nil && v.Severity != *f.Severity {
		return false
	}
	if f.ActorID != "" && v.Actor.ID != f.ActorID {
		return false
	}
	if f.ResourceID != "" && v.Resource.ID != f.ResourceID {
		return false
	}
	if f.Status != nil && v.Status != *f.Status {
		return false
	}
	if f.Since != nil && v.DetectedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && v.DetectedAt.After(*f.Until) {
		return false
	}
	return true
}

func sortViolations(vs []Violation, sortBy string, desc bool) {
	less := func(i, j int) bool {
		switch sortBy {
		case "severity":
			return vs[i].Severity < vs[j].Severity
		case "count":
			return vs[i].ID < vs[j].ID
		default: // "time"
			return vs[i].DetectedAt.Before(vs[j].DetectedAt)
		}
	}
	if desc {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.SliceStable(vs, less)
}

func paginate(vs []Violation, offset, limit int) []Violation {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(vs) {
		return []Violation{}
	}
	end := len(vs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return vs[offset:end]
}

func groupKey(v Violation, by AggregateGroupBy) string {
	switch by {
	case GroupByActor:
		return v.Actor.ID
	case GroupByResource:
		return v.Resource.ID
	case GroupBySeverity:
		return v.Severity.String()
	default:
		return string(v.Type)
	}
}

var _ Store = (*MemoryStore)(nil)
