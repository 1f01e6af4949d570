package auditstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is a durable Store backend. It assumes a single logical
// writer per (tenant, scope, scopeId); Append relies on a transaction-level
// advisory lock (pg_advisory_xact_lock) keyed by the log identity to
// serialise concurrent writers from separate processes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB. The caller owns the
// connection's lifecycle; call EnsureSchema once at startup.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit_entries and audit_logs tables if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS audit_logs (
	tenant_id   TEXT NOT NULL,
	scope       TEXT NOT NULL,
	scope_id    TEXT NOT NULL,
	latest_seq  BIGINT NOT NULL DEFAULT 0,
	head_hash   TEXT NOT NULL DEFAULT '',
	entry_count BIGINT NOT NULL DEFAULT 0,
	sealed      BOOLEAN NOT NULL DEFAULT FALSE,
	sealed_at   TIMESTAMPTZ,
	seal_reason TEXT,
	PRIMARY KEY (tenant_id, scope, scope_id)
);
CREATE TABLE IF NOT EXISTS audit_entries (
	tenant_id     TEXT NOT NULL,
	scope         TEXT NOT NULL,
	scope_id      TEXT NOT NULL,
	sequence      BIGINT NOT NULL,
	entry_id      TEXT NOT NULL,
	payload       JSONB NOT NULL,
	content_hash  TEXT NOT NULL,
	previous_hash TEXT,
	high_risk     BOOLEAN NOT NULL DEFAULT FALSE,
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, scope, scope_id, sequence)
);
CREATE INDEX IF NOT EXISTS audit_entries_by_id ON audit_entries (tenant_id, scope, scope_id, entry_id);
`)
	if err != nil {
		return fmt.Errorf("auditstore: ensure schema: %w", err)
	}
	return nil
}

func advisoryKey(id LogIdentity) int64 {
	var h int64 = 14695981039346656037 % (1 << 62)
	for _, c := range logKey(id) {
		h = (h*1099511628211 + int64(c)) % (1 << 62)
	}
	return h
}

func (s *PostgresStore) Append(ctx context.Context, id LogIdentity, entry Entry) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("auditstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(id)); err != nil {
		return Entry{}, fmt.Errorf("auditstore: lock log: %w", err)
	}

	var sealed bool
	var latestSeq, entryCount uint64
	var headHash sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT sealed, latest_seq, head_hash, entry_count FROM audit_logs WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3`,
		id.TenantID, id.Scope, id.ScopeID,
	).Scan(&sealed, &latestSeq, &headHash, &entryCount)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_logs (tenant_id, scope, scope_id) VALUES ($1,$2,$3)`,
			id.TenantID, id.Scope, id.ScopeID); err != nil {
			return Entry{}, fmt.Errorf("auditstore: init log: %w", err)
		}
	} else if err != nil {
		return Entry{}, fmt.Errorf("auditstore: load log meta: %w", err)
	}
	if sealed {
		return Entry{}, ErrLogSealed
	}
	if entry.Chain.Sequence != latestSeq+1 && !(entryCount == 0 && entry.Chain.Sequence == 0) {
		return Entry{}, fmt.Errorf("%w: got sequence %d, expected %d", ErrSequenceGap, entry.Chain.Sequence, latestSeq+1)
	}
	gotPrev := ""
	if entry.Chain.PreviousHash != nil {
		gotPrev = *entry.Chain.PreviousHash
	}
	if gotPrev != headHash.String {
		return Entry{}, fmt.Errorf("%w: previousHash %q does not match head %q", ErrChainMismatch, gotPrev, headHash.String)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("auditstore: marshal entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit_entries (tenant_id, scope, scope_id, sequence, entry_id, payload, content_hash, previous_hash, high_risk)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id.TenantID, id.Scope, id.ScopeID, entry.Chain.Sequence, entry.ID, payload, entry.Chain.ContentHash, nullableString(entry.Chain.PreviousHash), entry.HighRisk,
	); err != nil {
		return Entry{}, fmt.Errorf("auditstore: insert entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE audit_logs SET latest_seq=$4, head_hash=$5, entry_count=entry_count+1 WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3`,
		id.TenantID, id.Scope, id.ScopeID, entry.Chain.Sequence, entry.Chain.ContentHash,
	); err != nil {
		return Entry{}, fmt.Errorf("auditstore: update log meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("auditstore: commit: %w", err)
	}
	return entry, nil
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func (s *PostgresStore) scanEntry(row *sql.Row) (Entry, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("auditstore: scan entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return Entry{}, fmt.Errorf("auditstore: unmarshal entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetBySequence(ctx context.Context, id LogIdentity, seq uint64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_entries WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3 AND sequence=$4`,
		id.TenantID, id.Scope, id.ScopeID, seq)
	return s.scanEntry(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id LogIdentity, entryID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_entries WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3 AND entry_id=$4`,
		id.TenantID, id.Scope, id.ScopeID, entryID)
	return s.scanEntry(row)
}

func (s *PostgresStore) GetRange(ctx context.Context, id LogIdentity, start, end uint64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM audit_entries WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3 AND sequence BETWEEN $4 AND $5 ORDER BY sequence ASC`,
		id.TenantID, id.Scope, id.ScopeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("auditstore: get range: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	out := make([]Entry, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("auditstore: scan entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("auditstore: unmarshal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLatest(ctx context.Context, id LogIdentity) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_entries WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3 ORDER BY sequence DESC LIMIT 1`,
		id.TenantID, id.Scope, id.ScopeID)
	return s.scanEntry(row)
}

func (s *PostgresStore) GetCount(ctx context.Context, id LogIdentity) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_count FROM audit_logs WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3`,
		id.TenantID, id.Scope, id.ScopeID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("auditstore: get count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Query(ctx context.Context, id LogIdentity, filter QueryFilter) ([]Entry, error) {
	var b strings.Builder
	args := []any{id.TenantID, id.Scope, id.ScopeID}
	b.WriteString(`SELECT payload FROM audit_entries WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3`)
	if filter.SeqStart > 0 {
		args = append(args, filter.SeqStart)
		fmt.Fprintf(&b, ` AND sequence >= $%d`, len(args))
	}
	if filter.SeqEnd > 0 {
		args = append(args, filter.SeqEnd)
		fmt.Fprintf(&b, ` AND sequence <= $%d`, len(args))
	}
	if filter.HighRiskOnly {
		b.WriteString(` AND high_risk = TRUE`)
	}
	if filter.Descending {
		b.WriteString(` ORDER BY sequence DESC`)
	} else {
		b.WriteString(` ORDER BY sequence ASC`)
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("auditstore: query: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	// Filters not expressible as plain SQL predicates above (actor,
	// category, event type, tags, substring, time window) are applied
	// in-process against the already-narrowed result set.
	out := entries[:0]
	for _, e := range entries {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *PostgresStore) Seal(ctx context.Context, id LogIdentity, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_logs SET sealed=TRUE, sealed_at=$4, seal_reason=$5 WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3`,
		id.TenantID, id.Scope, id.ScopeID, now, reason)
	if err != nil {
		return fmt.Errorf("auditstore: seal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Meta(ctx context.Context, id LogIdentity) (LogMeta, error) {
	meta := LogMeta{Identity: id}
	var sealedAt sql.NullTime
	var sealReason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT latest_seq, head_hash, entry_count, sealed, sealed_at, seal_reason FROM audit_logs WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3`,
		id.TenantID, id.Scope, id.ScopeID,
	).Scan(&meta.LatestSequence, &meta.HeadHash, &meta.EntryCount, &meta.Sealed, &sealedAt, &sealReason)
	if err == sql.ErrNoRows {
		return meta, nil
	}
	if err != nil {
		return LogMeta{}, fmt.Errorf("auditstore: meta: %w", err)
	}
	if sealedAt.Valid {
		meta.SealedAt = &sealedAt.Time
	}
	meta.SealReason = sealReason.String
	return meta, nil
}

// VerifyChain streams the whole log ordered by sequence and re-derives
// each contentHash, exactly as MemoryStore.VerifyChain does.
func (s *PostgresStore) VerifyChain(ctx context.Context, id LogIdentity) (VerificationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM audit_entries WHERE tenant_id=$1 AND scope=$2 AND scope_id=$3 ORDER BY sequence ASC`,
		id.TenantID, id.Scope, id.ScopeID)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("auditstore: verify chain: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{Valid: true, VerifiedAt: time.Now().UTC()}
	var expectedPrev string
	for _, e := range entries {
		gotPrev := ""
		if e.Chain.PreviousHash != nil {
			gotPrev = *e.Chain.PreviousHash
		}
		if gotPrev != expectedPrev {
			result.Valid = false
			result.FirstInvalidEntry = e.Chain.Sequence
			result.InvalidReason = "previousHash does not match prior entry's contentHash"
			return result, nil
		}
		recomputed, err := ContentHash(e)
		if err != nil || recomputed != e.Chain.ContentHash {
			result.Valid = false
			result.FirstInvalidEntry = e.Chain.Sequence
			result.InvalidReason = "contentHash mismatch"
			return result, nil
		}
		result.EntriesVerified++
		expectedPrev = e.Chain.ContentHash
		result.LastEntryHash = expectedPrev
	}
	return result, nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
