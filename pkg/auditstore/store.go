package auditstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the append-only audit log contract. A conforming
// implementation serialises Append under a per-log mutex; reads are
// unbounded and concurrent with writes.
type Store interface {
	Append(ctx context.Context, id LogIdentity, entry Entry) (Entry, error)
	GetBySequence(ctx context.Context, id LogIdentity, seq uint64) (Entry, error)
	GetByID(ctx context.Context, id LogIdentity, entryID string) (Entry, error)
	GetRange(ctx context.Context, id LogIdentity, start, end uint64) ([]Entry, error)
	GetLatest(ctx context.Context, id LogIdentity) (Entry, error)
	GetCount(ctx context.Context, id LogIdentity) (uint64, error)
	Query(ctx context.Context, id LogIdentity, filter QueryFilter) ([]Entry, error)
	Seal(ctx context.Context, id LogIdentity, reason string) error
	Meta(ctx context.Context, id LogIdentity) (LogMeta, error)
	VerifyChain(ctx context.Context, id LogIdentity) (VerificationResult, error)
}

type logState struct {
	mu      sync.RWMutex
	meta    LogMeta
	entries []Entry
	byID    map[string]int // entryID -> index in entries
}

// MemoryStore is the always-available in-memory backend, keyed by
// (tenant, scope, scopeId). Exactly one logical writer is assumed per
// log; Append is serialised by that log's mutex.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string]*logState
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*logState)}
}

func logKey(id LogIdentity) string {
	return id.TenantID + "/" + id.Scope + "/" + id.ScopeID
}

func (s *MemoryStore) logFor(id LogIdentity) *logState {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey(id)
	ls, ok := s.logs[key]
	if !ok {
		ls = &logState{
			meta: LogMeta{Identity: id},
			byID: make(map[string]int),
		}
		s.logs[key] = ls
	}
	return ls
}

// Append validates sequence/previousHash continuity and seal state,
// then stores entry. The entry's ContentHash must already be computed
// by the caller (typically pkg/auditchain.Builder); Append does not
// recompute it, only verifies linkage.
func (s *MemoryStore) Append(ctx context.Context, id LogIdentity, entry Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	ls := s.logFor(id)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.meta.Sealed {
		return Entry{}, ErrLogSealed
	}
	if entry.Chain.Sequence != ls.meta.LatestSequence+1 && !(ls.meta.LatestSequence == 0 && len(ls.entries) == 0 && entry.Chain.Sequence == 0) {
		return Entry{}, fmt.Errorf("%w: got sequence %d, expected %d", ErrSequenceGap, entry.Chain.Sequence, ls.meta.LatestSequence+1)
	}
	var expectedPrev string
	if len(ls.entries) > 0 {
		expectedPrev = ls.entries[len(ls.entries)-1].Chain.ContentHash
	}
	gotPrev := ""
	if entry.Chain.PreviousHash != nil {
		gotPrev = *entry.Chain.PreviousHash
	}
	if gotPrev != expectedPrev {
		return Entry{}, fmt.Errorf("%w: previousHash %q does not match head %q", ErrChainMismatch, gotPrev, expectedPrev)
	}

	ls.entries = append(ls.entries, entry)
	ls.byID[entry.ID] = len(ls.entries) - 1
	ls.meta.LatestSequence = entry.Chain.Sequence
	ls.meta.HeadHash = entry.Chain.ContentHash
	ls.meta.EntryCount++
	return entry, nil
}

func (s *MemoryStore) GetBySequence(ctx context.Context, id LogIdentity, seq uint64) (Entry, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, e := range ls.entries {
		if e.Chain.Sequence == seq {
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (s *MemoryStore) GetByID(ctx context.Context, id LogIdentity, entryID string) (Entry, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	idx, ok := ls.byID[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return ls.entries[idx], nil
}

func (s *MemoryStore) GetRange(ctx context.Context, id LogIdentity, start, end uint64) ([]Entry, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range ls.entries {
		if e.Chain.Sequence >= start && e.Chain.Sequence <= end {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetLatest(ctx context.Context, id LogIdentity) (Entry, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if len(ls.entries) == 0 {
		return Entry{}, ErrEntryNotFound
	}
	return ls.entries[len(ls.entries)-1], nil
}

func (s *MemoryStore) GetCount(ctx context.Context, id LogIdentity) (uint64, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.meta.EntryCount, nil
}

func (f QueryFilter) matches(e Entry) bool {
	if f.Category != "" && e.Action.Category != f.Category {
		return false
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.EventType != "" && e.Action.Type != f.EventType {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.SeqStart > 0 && e.Chain.Sequence < f.SeqStart {
		return false
	}
	if f.SeqEnd > 0 && e.Chain.Sequence > f.SeqEnd {
		return false
	}
	if f.HighRiskOnly && !e.HighRisk {
		return false
	}
	if len(f.Tags) > 0 {
		want := make(map[string]bool, len(f.Tags))
		for _, t := range f.Tags {
			want[t] = true
		}
		found := false
		for _, t := range e.Tags {
			if want[t] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Substring != "" {
		hay := e.Action.Description + " " + e.Outcome
		if e.Resource != nil {
			hay += " " + e.Resource.Name + " " + e.Resource.ID
		}
		if !strings.Contains(strings.ToLower(hay), strings.ToLower(f.Substring)) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) Query(ctx context.Context, id LogIdentity, filter QueryFilter) ([]Entry, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	matched := make([]Entry, 0)
	for _, e := range ls.entries {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	ls.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if filter.Descending {
			return matched[i].Chain.Sequence > matched[j].Chain.Sequence
		}
		return matched[i].Chain.Sequence < matched[j].Chain.Sequence
	})

	if filter.Offset > 0 && filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else if filter.Offset >= len(matched) {
		matched = nil
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Seal(ctx context.Context, id LogIdentity, reason string) error {
	ls := s.logFor(id)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	now := time.Now().UTC()
	ls.meta.Sealed = true
	ls.meta.SealedAt = &now
	ls.meta.SealReason = reason
	return nil
}

func (s *MemoryStore) Meta(ctx context.Context, id LogIdentity) (LogMeta, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.meta, nil
}

// VerifyChain recomputes each entry's content hash and checks linkage,
// per spec.md §8 property 1/2 and the Integrity error taxonomy in §7.
func (s *MemoryStore) VerifyChain(ctx context.Context, id LogIdentity) (VerificationResult, error) {
	ls := s.logFor(id)
	ls.mu.RLock()
	entries := make([]Entry, len(ls.entries))
	copy(entries, ls.entries)
	ls.mu.RUnlock()

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
		if err != nil {
			result.Valid = false
			result.FirstInvalidEntry = e.Chain.Sequence
			result.InvalidReason = fmt.Sprintf("content hash recomputation failed: %v", err)
			return result, nil
		}
		if recomputed != e.Chain.ContentHash {
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
