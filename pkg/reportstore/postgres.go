package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentgov/governance-core/pkg/report"
)

// PostgresStore is a durable Store backend, grounded on
// pkg/auditstore.PostgresStore's schema-per-table/JSONB-payload idiom.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore wraps an existing *sql.DB. The caller owns the
// connection's lifecycle; call EnsureSchema once at startup.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// EnsureSchema creates the reports and report_versions tables if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reports (
	tenant_id   TEXT NOT NULL,
	report_id   TEXT NOT NULL,
	title       TEXT NOT NULL,
	framework   TEXT NOT NULL,
	status      TEXT NOT NULL,
	signed      BOOLEAN NOT NULL DEFAULT FALSE,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, report_id)
);
CREATE TABLE IF NOT EXISTS report_versions (
	tenant_id   TEXT NOT NULL,
	report_id   TEXT NOT NULL,
	version     INT NOT NULL,
	payload     JSONB NOT NULL,
	change_description TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	created_by  TEXT,
	PRIMARY KEY (tenant_id, report_id, version)
);
`)
	if err != nil {
		return fmt.Errorf("reportstore: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, tenantID string, r report.Report) (report.Report, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report.Report{}, fmt.Errorf("reportstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	r.TenantID = tenantID

	var createdAt time.Time
	var createdBy string
	var existingPayload []byte
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, payload FROM reports WHERE tenant_id=$1 AND report_id=$2`,
		tenantID, r.ID,
	).Scan(&createdAt, &existingPayload)
	switch {
	case err == sql.ErrNoRows:
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
	case err != nil:
		return report.Report{}, fmt.Errorf("reportstore: load existing: %w", err)
	default:
		var existing report.Report
		if err := json.Unmarshal(existingPayload, &existing); err == nil {
			createdBy = existing.CreatedBy
		}
		r.CreatedAt = createdAt
		r.CreatedBy = createdBy
	}
	r.UpdatedAt = now

	payload, err := json.Marshal(r)
	if err != nil {
		return report.Report{}, fmt.Errorf("reportstore: marshal report: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO reports (tenant_id, report_id, title, framework, status, signed, payload, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (tenant_id, report_id) DO UPDATE SET
	title=EXCLUDED.title, framework=EXCLUDED.framework, status=EXCLUDED.status,
	signed=EXCLUDED.signed, payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at
`, tenantID, r.ID, r.Title, string(r.Framework), string(r.Status), r.Signature != nil, payload, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return report.Report{}, fmt.Errorf("reportstore: upsert report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return report.Report{}, fmt.Errorf("reportstore: commit: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) SaveSigned(ctx context.Context, tenantID string, r report.Report) (report.Report, error) {
	if r.Signature == nil {
		return report.Report{}, report.ErrNotSigned
	}
	return s.Save(ctx, tenantID, r)
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, reportID string) (report.Report, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM reports WHERE tenant_id=$1 AND report_id=$2`, tenantID, reportID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return report.Report{}, ErrReportNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("reportstore: get: %w", err)
	}
	var r report.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return report.Report{}, fmt.Errorf("reportstore: unmarshal: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetMetadata(ctx context.Context, tenantID, reportID string) (Metadata, error) {
	r, err := s.Get(ctx, tenantID, reportID)
	if err != nil {
		return Metadata{}, err
	}
	var version int
	_ = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM report_versions WHERE tenant_id=$1 AND report_id=$2`, tenantID, reportID,
	).Scan(&version)
	return toMetadata(r, version+1), nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, reportID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reportstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE tenant_id=$1 AND report_id=$2`, tenantID, reportID)
	if err != nil {
		return fmt.Errorf("reportstore: delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReportNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_versions WHERE tenant_id=$1 AND report_id=$2`, tenantID, reportID); err != nil {
		return fmt.Errorf("reportstore: delete versions: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, opts ListOptions) ([]Metadata, error) {
	var b strings.Builder
	args := []any{tenantID}
	b.WriteString(`SELECT payload FROM reports WHERE tenant_id=$1`)

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		fmt.Fprintf(&b, ` AND status = $%d`, len(args))
	}
	if opts.Framework != "" {
		args = append(args, string(opts.Framework))
		fmt.Fprintf(&b, ` AND framework = $%d`, len(args))
	}
	if opts.Signed != nil {
		args = append(args, *opts.Signed)
		fmt.Fprintf(&b, ` AND signed = $%d`, len(args))
	}

	switch opts.SortBy {
	case SortTitle:
		b.WriteString(` ORDER BY title`)
	case SortStatus:
		b.WriteString(` ORDER BY status`)
	case SortUpdatedAt:
		b.WriteString(` ORDER BY updated_at`)
	default:
		b.WriteString(` ORDER BY created_at`)
	}
	if opts.Descending {
		b.WriteString(` DESC`)
	}

	limit := opts.normalizedLimit()
	args = append(args, limit)
	fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	args = append(args, opts.Offset)
	fmt.Fprintf(&b, ` OFFSET $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("reportstore: list: %w", err)
	}
	defer rows.Close()

	out := make([]Metadata, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("reportstore: scan: %w", err)
		}
		var r report.Report
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("reportstore: unmarshal: %w", err)
		}
		// Filters not expressible as plain SQL predicates above
		// (period window, tag set, creation window) are applied
		// in-process, matching pkg/auditstore.PostgresStore.Query.
		if !matchesFilter(r, opts) {
			continue
		}
		out = append(out, toMetadata(r, 1))
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, tenantID string, opts ListOptions) (int, error) {
	items, err := s.List(ctx, tenantID, ListOptions{
		Status: opts.Status, Framework: opts.Framework, Signed: opts.Signed,
		Tags: opts.Tags, PeriodStart: opts.PeriodStart, PeriodEnd: opts.PeriodEnd,
		CreatedAfter: opts.CreatedAfter, CreatedBefore: opts.CreatedBefore,
		Limit: maxListLimit,
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tenantID, reportID string, status report.ReportStatus) error {
	r, err := s.Get(ctx, tenantID, reportID)
	if err != nil {
		return err
	}
	r.Status = status
	_, err = s.Save(ctx, tenantID, r)
	return err
}

func (s *PostgresStore) CreateVersion(ctx context.Context, tenantID, reportID string, newReport report.Report, opts VersionOptions) (VersionRecord, error) {
	current, err := s.Get(ctx, tenantID, reportID)
	if err != nil {
		return VersionRecord{}, err
	}

	var versionCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM report_versions WHERE tenant_id=$1 AND report_id=$2`, tenantID, reportID,
	).Scan(&versionCount); err != nil {
		return VersionRecord{}, fmt.Errorf("reportstore: count versions: %w", err)
	}

	now := s.now().UTC()
	archived := VersionRecord{
		ReportID: reportID, Version: versionCount + 1, Report: current,
		ChangeDescription: opts.ChangeDescription, CreatedAt: now, CreatedBy: opts.CreatedBy,
	}
	payload, err := json.Marshal(current)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("reportstore: marshal version: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO report_versions (tenant_id, report_id, version, payload, change_description, created_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, tenantID, reportID, archived.Version, payload, opts.ChangeDescription, now, opts.CreatedBy); err != nil {
		return VersionRecord{}, fmt.Errorf("reportstore: insert version: %w", err)
	}

	newReport.ID = reportID
	newReport.TenantID = tenantID
	if newReport.Status == "" {
		newReport.Status = current.Status
	}
	newReport.CreatedAt = current.CreatedAt
	newReport.CreatedBy = current.CreatedBy
	newReport.UpdatedAt = now
	newReport.UpdatedBy = opts.CreatedBy
	if _, err := s.Save(ctx, tenantID, newReport); err != nil {
		return VersionRecord{}, err
	}

	return archived, nil
}

func (s *PostgresStore) GetVersionHistory(ctx context.Context, tenantID, reportID string) ([]VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, payload, change_description, created_at, created_by FROM report_versions WHERE tenant_id=$1 AND report_id=$2 ORDER BY version ASC`,
		tenantID, reportID)
	if err != nil {
		return nil, fmt.Errorf("reportstore: version history: %w", err)
	}
	defer rows.Close()

	out := make([]VersionRecord, 0)
	for rows.Next() {
		var v VersionRecord
		var payload []byte
		var changeDesc, createdBy sql.NullString
		if err := rows.Scan(&v.Version, &payload, &changeDesc, &v.CreatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("reportstore: scan version: %w", err)
		}
		if err := json.Unmarshal(payload, &v.Report); err != nil {
			return nil, fmt.Errorf("reportstore: unmarshal version: %w", err)
		}
		v.ReportID = reportID
		v.ChangeDescription = changeDesc.String
		v.CreatedBy = createdBy.String
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, tenantID, reportID string, version int) (report.Report, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM report_versions WHERE tenant_id=$1 AND report_id=$2 AND version=$3`,
		tenantID, reportID, version,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return report.Report{}, ErrVersionNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("reportstore: get version: %w", err)
	}
	var r report.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return report.Report{}, fmt.Errorf("reportstore: unmarshal: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ArchiveOlderThan(ctx context.Context, tenantID string, cutoff time.Time, excludeStatuses []report.ReportStatus) (int, error) {
	excluded := make([]string, len(excludeStatuses))
	for i, st := range excludeStatuses {
		excluded[i] = string(st)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status=$1, updated_at=$2 WHERE tenant_id=$3 AND created_at < $4 AND NOT (status = ANY($5::text[]))`,
		string(report.StatusArchived), s.now().UTC(), tenantID, cutoff, pqStringArray(excluded))
	if err != nil {
		return 0, fmt.Errorf("reportstore: archive older than: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// pqStringArray renders a Go string slice as a Postgres text[] array
// literal, avoiding a dependency on lib/pq's pq.Array helper types so
// PostgresStore only needs the driver, not its array codec.
func pqStringArray(ss []string) string {
	if len(ss) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range ss {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q", s)
	}
	b.WriteByte('}')
	return b.String()
}

func (s *PostgresStore) GetMany(ctx context.Context, tenantID string, ids []string) ([]report.Report, error) {
	out := make([]report.Report, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, tenantID, id)
		if err == ErrReportNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PostgresStore) Clear(ctx context.Context, tenantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reportstore: begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_versions WHERE tenant_id=$1`, tenantID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE tenant_id=$1`, tenantID); err != nil {
		return err
	}
	return tx.Commit()
}

var _ Store = (*PostgresStore)(nil)
