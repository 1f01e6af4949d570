package reportstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/governance-core/pkg/report"
)

func sampleReport(id string) report.Report {
	return report.Report{
		ID: id, Title: "Q3 SOC2 report", Framework: report.FrameworkSOC2Type1,
		Status: report.StatusDraft,
		Period: report.Period{Start: time.Now().Add(-48 * time.Hour), End: time.Now()},
		Tags:   []string{"soc2_type1"},
	}
}

func TestMemoryStore_SavePreservesCreatedAtOnUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Save(ctx, "t1", sampleReport("r1"))
	require.NoError(t, err)

	second := first
	second.Title = "Updated title"
	updated, err := s.Save(ctx, "t1", second)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "Updated title", updated.Title)
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt) || updated.UpdatedAt.Equal(first.UpdatedAt))
}

func TestMemoryStore_SaveSignedRequiresSignature(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.SaveSigned(context.Background(), "t1", sampleReport("r1"))
	assert.ErrorIs(t, err, report.ErrNotSigned)
}

func TestMemoryStore_TenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Save(ctx, "t1", sampleReport("shared-id"))
	require.NoError(t, err)
	_, err = s.Save(ctx, "t2", sampleReport("shared-id"))
	require.NoError(t, err)

	_, err = s.Get(ctx, "t1", "shared-id")
	require.NoError(t, err)
	_, err = s.Get(ctx, "t2", "shared-id")
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "t1"))
	_, err = s.Get(ctx, "t1", "shared-id")
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, err = s.Get(ctx, "t2", "shared-id")
	assert.NoError(t, err)
}

func TestMemoryStore_DeleteCascadesVersions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Save(ctx, "t1", sampleReport("r1"))
	require.NoError(t, err)

	_, err = s.CreateVersion(ctx, "t1", "r1", sampleReport("r1"), VersionOptions{ChangeDescription: "v2"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "t1", "r1"))
	_, err = s.GetVersionHistory(ctx, "t1", "r1")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestMemoryStore_CreateVersionInheritsStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := sampleReport("r1")
	r.Status = report.StatusApproved
	_, err := s.Save(ctx, "t1", r)
	require.NoError(t, err)

	next := sampleReport("r1")
	next.Status = ""
	archived, err := s.CreateVersion(ctx, "t1", "r1", next, VersionOptions{ChangeDescription: "refresh"})
	require.NoError(t, err)
	assert.Equal(t, 1, archived.Version)
	assert.Equal(t, report.StatusApproved, archived.Report.Status)

	current, err := s.Get(ctx, "t1", "r1")
	require.NoError(t, err)
	assert.Equal(t, report.StatusApproved, current.Status)
}

func TestMemoryStore_ListFiltersByStatusAndSigned(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	draft := sampleReport("r1")
	_, err := s.Save(ctx, "t1", draft)
	require.NoError(t, err)

	signed := sampleReport("r2")
	signed.Status = report.StatusApproved
	signed.Signature = &report.Signature{Algorithm: "ed25519", KeyID: "k1"}
	_, err = s.Save(ctx, "t1", signed)
	require.NoError(t, err)

	trueVal := true
	items, err := s.List(ctx, "t1", ListOptions{Signed: &trueVal})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "r2", items[0].ID)

	items, err = s.List(ctx, "t1", ListOptions{Status: report.StatusDraft})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "r1", items[0].ID)
}

func TestMemoryStore_ArchiveOlderThanExcludesStatuses(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	old := sampleReport("r1")
	old.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Save(ctx, "t1", old)
	require.NoError(t, err)

	approved := sampleReport("r2")
	approved.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	approved.Status = report.StatusApproved
	_, err = s.Save(ctx, "t1", approved)
	require.NoError(t, err)

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	n, err := s.ArchiveOlderThan(ctx, "t1", cutoff, []report.ReportStatus{report.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r1, _ := s.Get(ctx, "t1", "r1")
	assert.Equal(t, report.StatusArchived, r1.Status)
	r2, _ := s.Get(ctx, "t1", "r2")
	assert.Equal(t, report.StatusApproved, r2.Status)
}

func TestMemoryStore_GetManyAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := s.Save(ctx, "t1", sampleReport(id))
		require.NoError(t, err)
	}

	many, err := s.GetMany(ctx, "t1", []string{"r1", "r3", "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 2)

	count, err := s.Count(ctx, "t1", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
