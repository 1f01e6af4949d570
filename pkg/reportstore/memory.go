package reportstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agentgov/governance-core/pkg/report"
)

var (
	ErrReportNotFound  = errors.New("reportstore: report not found")
	ErrVersionNotFound = errors.New("reportstore: version not found")
)

type reportRecord struct {
	current   report.Report
	versions  []VersionRecord // history, oldest first; does not include `current`
}

type tenantState struct {
	mu      sync.RWMutex
	reports map[string]*reportRecord
}

// MemoryStore is the always-available in-memory backend, namespaced
// per tenant so cross-tenant report id collisions never interact,
// grounded on pkg/auditstore.MemoryStore's per-log namespace idiom.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[string]*tenantState
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantState), now: time.Now}
}

func (s *MemoryStore) tenant(tenantID string) *tenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tenants[tenantID]
	if !ok {
		ts = &tenantState{reports: make(map[string]*reportRecord)}
		s.tenants[tenantID] = ts
	}
	return ts
}

// Save persists r under tenantID. If r.ID already exists, Save
// preserves the existing createdAt/createdBy and only updates
// updatedAt/updatedBy, per spec.md §4.L versioning semantics.
func (s *MemoryStore) Save(ctx context.Context, tenantID string, r report.Report) (report.Report, error) {
	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}
	ts := s.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := s.now().UTC()
	r.TenantID = tenantID
	if existing, ok := ts.reports[r.ID]; ok {
		r.CreatedAt = existing.current.CreatedAt
		r.CreatedBy = existing.current.CreatedBy
		r.UpdatedAt = now
		existing.current = r
		return r, nil
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	ts.reports[r.ID] = &reportRecord{current: r}
	return r, nil
}

// SaveSigned is Save restricted to reports that already carry a
// signature.
func (s *MemoryStore) SaveSigned(ctx context.Context, tenantID string, r report.Report) (report.Report, error) {
	if r.Signature == nil {
		return report.Report{}, report.ErrNotSigned
	}
	return s.Save(ctx, tenantID, r)
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, reportID string) (report.Report, error) {
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	rec, ok := ts.reports[reportID]
	if !ok {
		return report.Report{}, ErrReportNotFound
	}
	return rec.current, nil
}

func (s *MemoryStore) GetMetadata(ctx context.Context, tenantID, reportID string) (Metadata, error) {
	r, err := s.Get(ctx, tenantID, reportID)
	if err != nil {
		return Metadata{}, err
	}
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	version := len(ts.reports[reportID].versions) + 1
	ts.mu.RUnlock()
	return toMetadata(r, version), nil
}

func toMetadata(r report.Report, version int) Metadata {
	return Metadata{
		ID: r.ID, TenantID: r.TenantID, Title: r.Title, Framework: r.Framework,
		Status: r.Status, Period: r.Period, Signed: r.Signature != nil,
		CurrentVersion: version, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Tags: r.Tags,
	}
}

// Delete removes a report and its entire version history.
func (s *MemoryStore) Delete(ctx context.Context, tenantID, reportID string) error {
	ts := s.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.reports[reportID]; !ok {
		return ErrReportNotFound
	}
	delete(ts.reports, reportID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, opts ListOptions) ([]Metadata, error) {
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]Metadata, 0, len(ts.reports))
	for _, rec := range ts.reports {
		if !matchesFilter(rec.current, opts) {
			continue
		}
		out = append(out, toMetadata(rec.current, len(rec.versions)+1))
	}

	sortMetadata(out, opts.SortBy, opts.Descending)

	limit := opts.normalizedLimit()
	offset := opts.Offset
	if offset > len(out) {
		return []Metadata{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *MemoryStore) Count(ctx context.Context, tenantID string, opts ListOptions) (int, error) {
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	count := 0
	for _, rec := range ts.reports {
		if matchesFilter(rec.current, opts) {
			count++
		}
	}
	return count, nil
}

func matchesFilter(r report.Report, opts ListOptions) bool {
	if opts.Status != "" && r.Status != opts.Status {
		return false
	}
	if len(opts.Statuses) > 0 && !statusIn(r.Status, opts.Statuses) {
		return false
	}
	if opts.Framework != "" && r.Framework != opts.Framework {
		return false
	}
	if opts.PeriodStart != nil && r.Period.Start.Before(*opts.PeriodStart) {
		return false
	}
	if opts.PeriodEnd != nil && r.Period.End.After(*opts.PeriodEnd) {
		return false
	}
	if opts.Signed != nil && (r.Signature != nil) != *opts.Signed {
		return false
	}
	if len(opts.Tags) > 0 && !tagsIntersect(r.Tags, opts.Tags) {
		return false
	}
	if opts.CreatedAfter != nil && r.CreatedAt.Before(*opts.CreatedAfter) {
		return false
	}
	if opts.CreatedBefore != nil && r.CreatedAt.After(*opts.CreatedBefore) {
		return false
	}
	return true
}

func statusIn(status report.ReportStatus, statuses []report.ReportStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func tagsIntersect(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func sortMetadata(items []Metadata, field SortField, desc bool) {
	less := func(i, j int) bool {
		switch field {
		case SortTitle:
			return items[i].Title < items[j].Title
		case SortStatus:
			return items[i].Status < items[j].Status
		case SortUpdatedAt:
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		default:
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
	}
	if desc {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.Slice(items, less)
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, tenantID, reportID string, status report.ReportStatus) error {
	ts := s.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	rec, ok := ts.reports[reportID]
	if !ok {
		return ErrReportNotFound
	}
	rec.current.Status = status
	rec.current.UpdatedAt = s.now().UTC()
	return nil
}

// CreateVersion appends the current report to version history and
// installs newReport as current, inheriting status from the prior
// version unless newReport sets its own.
func (s *MemoryStore) CreateVersion(ctx context.Context, tenantID, reportID string, newReport report.Report, opts VersionOptions) (VersionRecord, error) {
	ts := s.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := ts.reports[reportID]
	if !ok {
		return VersionRecord{}, ErrReportNotFound
	}

	now := s.now().UTC()
	archived := VersionRecord{
		ReportID: reportID, Version: len(rec.versions) + 1, Report: rec.current,
		ChangeDescription: opts.ChangeDescription, CreatedAt: now, CreatedBy: opts.CreatedBy,
	}
	rec.versions = append(rec.versions, archived)

	newReport.ID = reportID
	newReport.TenantID = tenantID
	if newReport.Status == "" {
		newReport.Status = rec.current.Status
	}
	newReport.CreatedAt = rec.current.CreatedAt
	newReport.CreatedBy = rec.current.CreatedBy
	newReport.UpdatedAt = now
	newReport.UpdatedBy = opts.CreatedBy
	rec.current = newReport

	return archived, nil
}

func (s *MemoryStore) GetVersionHistory(ctx context.Context, tenantID, reportID string) ([]VersionRecord, error) {
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	rec, ok := ts.reports[reportID]
	if !ok {
		return nil, ErrReportNotFound
	}
	out := make([]VersionRecord, len(rec.versions))
	copy(out, rec.versions)
	return out, nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, tenantID, reportID string, version int) (report.Report, error) {
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	rec, ok := ts.reports[reportID]
	if !ok {
		return report.Report{}, ErrReportNotFound
	}
	for _, v := range rec.versions {
		if v.Version == version {
			return v.Report, nil
		}
	}
	return report.Report{}, ErrVersionNotFound
}

// ArchiveOlderThan marks every report created before cutoff as
// archived, skipping any report whose status is in excludeStatuses.
// Callers needing off-store retention (e.g. S3) should layer an
// Archiver in front of this call; see S3Archiver.
func (s *MemoryStore) ArchiveOlderThan(ctx context.Context, tenantID string, cutoff time.Time, excludeStatuses []report.ReportStatus) (int, error) {
	ts := s.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	count := 0
	for _, rec := range ts.reports {
		if !rec.current.CreatedAt.Before(cutoff) {
			continue
		}
		if statusIn(rec.current.Status, excludeStatuses) {
			continue
		}
		rec.current.Status = report.StatusArchived
		rec.current.UpdatedAt = s.now().UTC()
		count++
	}
	return count, nil
}

func (s *MemoryStore) GetMany(ctx context.Context, tenantID string, ids []string) ([]report.Report, error) {
	ts := s.tenant(tenantID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]report.Report, 0, len(ids))
	for _, id := range ids {
		if rec, ok := ts.reports[id]; ok {
			out = append(out, rec.current)
		}
	}
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	delete(s.tenants, tenantID)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ report.Store = (*MemoryStore)(nil)
