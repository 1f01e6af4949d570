// Package auditchain builds linked, optionally signed audit entries in
// strict sequence order. It is the only writer of chain.sequence and
// chain.previousHash; pkg/auditstore only ever validates and persists
// what the Builder produces.
package auditchain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentgov/governance-core/pkg/auditstore"
	"github.com/agentgov/governance-core/pkg/hashing"
)

// ErrMixedAlgorithm names a hash-algorithm mix within a single log. A
// Builder's algorithm is fixed at construction, so every entry one
// Builder produces carries the same algorithm and BuildEntry never
// returns this error. No function in this module returns it, and
// pkg/auditstore's Append does not compare algorithms across entries.
var ErrMixedAlgorithm = errors.New("auditchain: mixed hash algorithm within a single log")

// Signer signs a content hash and reports the signature scheme name
// (e.g. "ed25519:key-1" or "rsa-sha256:key-1") embedded in chain.signature.
type Signer interface {
	Sign(contentHash string) (signature string, err error)
}

// Input is what a caller supplies to build the next entry; Builder
// fills in timestamp, id, and chain linkage.
type Input struct {
	SchemaVersion string
	Timestamp     *time.Time // nil => now, UTC
	Actor         auditstore.Actor
	Action        auditstore.Action
	Resource      *auditstore.Resource
	Outcome       string
	Context       auditstore.Context
	Tags          []string
	HighRisk      bool
	Compliance    []string
	Details       map[string]any
	IncludeContextHash bool
}

// Builder holds the private (nextSequence, lastHash, algorithm) state
// for exactly one log. It must not be shared across logs.
type Builder struct {
	mu           sync.Mutex
	nextSequence uint64
	lastHash     *string
	algorithm    hashing.Algorithm
	signer       Signer
}

// New creates a builder starting at sequence 0 with no prior hash.
func New(algo hashing.Algorithm, signer Signer) (*Builder, error) {
	if algo == "" {
		algo = hashing.SHA256
	}
	if !algo.Valid() {
		return nil, fmt.Errorf("auditchain: %w: %q", hashing.ErrUnsupportedAlgorithm, algo)
	}
	return &Builder{algorithm: algo, signer: signer}, nil
}

// InitializeFrom restores builder state after a restart, reading the
// persisted log's latest sequence and head hash.
func (b *Builder) InitializeFrom(sequence uint64, hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSequence = sequence + 1
	if hash == "" {
		b.lastHash = nil
	} else {
		h := hash
		b.lastHash = &h
	}
}

// Reset returns the builder to its initial (0, nil) state.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSequence = 0
	b.lastHash = nil
}

// BuildEntry produces the next entry in sequence, computes its content
// hash, optionally signs it, and advances the builder's state. The
// returned Entry has not been persisted; the caller must pass it to a
// Store.Append.
func (b *Builder) BuildEntry(in Input) (auditstore.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := time.Now().UTC()
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	schemaVersion := in.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = "1.0"
	}

	entry := auditstore.Entry{
		ID:            uuid.New().String(),
		SchemaVersion: schemaVersion,
		Timestamp:     ts,
		Actor:         in.Actor,
		Action:        in.Action,
		Resource:      in.Resource,
		Outcome:       in.Outcome,
		Context:       in.Context,
		Tags:          in.Tags,
		HighRisk:      in.HighRisk,
		Compliance:    in.Compliance,
		Details:       in.Details,
		Chain: auditstore.ChainLink{
			Sequence:     b.nextSequence,
			PreviousHash: b.lastHash,
			Algorithm:    b.algorithm,
			ComputedAt:   ts,
		},
	}

	if in.IncludeContextHash {
		ch, err := auditstore.ComputeContextHash(in.Context, b.algorithm)
		if err != nil {
			return auditstore.Entry{}, err
		}
		entry.ContextHash = &ch
	}

	contentHash, err := auditstore.ContentHash(entry)
	if err != nil {
		return auditstore.Entry{}, fmt.Errorf("auditchain: content hash: %w", err)
	}
	entry.Chain.ContentHash = contentHash

	if b.signer != nil {
		sig, err := b.signer.Sign(contentHash)
		if err != nil {
			return auditstore.Entry{}, fmt.Errorf("auditchain: sign: %w", err)
		}
		entry.Chain.Signature = sig
	}

	b.nextSequence++
	hashCopy := contentHash
	b.lastHash = &hashCopy

	return entry, nil
}
