// Package reportstore implements the per-tenant compliance report
// store, spec.md §4.L: an in-memory backend plus optional Postgres
// durability and S3 archival, versioned and isolated by tenant.
package reportstore

import (
	"context"
	"time"

	"github.com/agentgov/governance-core/pkg/report"
)

// SortField names a List sort key.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
	SortStatus    SortField = "status"
)

const (
	defaultListLimit = 100
	maxListLimit      = 1000
)

// ListOptions filters and paginates List.
type ListOptions struct {
	Status        report.ReportStatus
	Statuses      []report.ReportStatus
	Framework     report.Framework
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	Signed        *bool
	Tags          []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	SortBy        SortField
	Descending    bool
	Limit         int
	Offset        int
}

func (o ListOptions) normalizedLimit() int {
	if o.Limit <= 0 {
		return defaultListLimit
	}
	if o.Limit > maxListLimit {
		return maxListLimit
	}
	return o.Limit
}

// VersionOptions parameterizes CreateVersion.
type VersionOptions struct {
	ChangeDescription string
	CreatedBy         string
}

// VersionRecord is one historical snapshot of a report.
type VersionRecord struct {
	ReportID          string
	Version           int
	Report            report.Report
	ChangeDescription string
	CreatedAt         time.Time
	CreatedBy         string
}

// Metadata is List/GetMetadata's lightweight projection of a report.
type Metadata struct {
	ID           string
	TenantID     string
	Title        string
	Framework    report.Framework
	Status       report.ReportStatus
	Period       report.Period
	Signed       bool
	CurrentVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Tags         []string
}

// Store is the §4.L report store contract.
type Store interface {
	Save(ctx context.Context, tenantID string, r report.Report) (report.Report, error)
	SaveSigned(ctx context.Context, tenantID string, r report.Report) (report.Report, error)
	Get(ctx context.Context, tenantID, reportID string) (report.Report, error)
	GetMetadata(ctx context.Context, tenantID, reportID string) (Metadata, error)
	Delete(ctx context.Context, tenantID, reportID string) error
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Metadata, error)
	Count(ctx context.Context, tenantID string, opts ListOptions) (int, error)
	UpdateStatus(ctx context.Context, tenantID, reportID string, status report.ReportStatus) error
	CreateVersion(ctx context.Context, tenantID, reportID string, newReport report.Report, opts VersionOptions) (VersionRecord, error)
	GetVersionHistory(ctx context.Context, tenantID, reportID string) ([]VersionRecord, error)
	GetVersion(ctx context.Context, tenantID, reportID string, version int) (report.Report, error)
	ArchiveOlderThan(ctx context.Context, tenantID string, cutoff time.Time, excludeStatuses []report.ReportStatus) (int, error)
	GetMany(ctx context.Context, tenantID string, ids []string) ([]report.Report, error)
	Clear(ctx context.Context, tenantID string) error
}
