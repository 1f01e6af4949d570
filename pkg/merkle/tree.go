// Package merkle builds a Merkle tree over a batch of audit entry
// content hashes and proves/verifies inclusion of individual entries.
package merkle

import (
	"fmt"

	"github.com/agentgov/governance-core/pkg/hashing"
)

// Leaf pairs an audit entry id with the leaf hash derived from its
// content hash.
type Leaf struct {
	EntryID  string
	Hash     string
}

// Tree is the result of building over an ordered batch of leaves.
type Tree struct {
	Algorithm hashing.Algorithm
	Leaves    []Leaf
	Root      string
	levels    [][]string // levels[0] = padded leaf hashes, ... levels[depth-1] = [root]
}

// Depth returns ceil(log2(n))+1 for n>0, matching spec.md §4.C.
func (t *Tree) Depth() int {
	if len(t.Leaves) == 0 {
		return 0
	}
	return len(t.levels)
}

// Build constructs a Merkle tree over entries' content hashes, in the
// order given. An empty batch has root "". A single-entry batch has
// root == that entry's leaf hash. Otherwise the leaf level is
// right-padded with hash("") up to the next power of two and combined
// pairwise as parent = hash(left || right) until one root remains.
func Build(entryIDs []string, contentHashes []string, algo hashing.Algorithm) (*Tree, error) {
	if len(entryIDs) != len(contentHashes) {
		return nil, fmt.Errorf("merkle: entryIDs and contentHashes length mismatch")
	}
	if algo == "" {
		algo = hashing.SHA256
	}

	leaves := make([]Leaf, len(entryIDs))
	for i := range entryIDs {
		leaves[i] = Leaf{EntryID: entryIDs[i], Hash: contentHashes[i]}
	}

	t := &Tree{Algorithm: algo, Leaves: leaves}
	if len(leaves) == 0 {
		return t, nil
	}
	if len(leaves) == 1 {
		t.Root = leaves[0].Hash
		t.levels = [][]string{{leaves[0].Hash}}
		return t, nil
	}

	level := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = l.Hash
	}

	emptyHash, err := hashing.Hash([]byte{}, algo)
	if err != nil {
		return nil, fmt.Errorf("merkle: empty hash: %w", err)
	}
	size := nextPowerOfTwo(len(level))
	for len(level) < size {
		level = append(level, emptyHash)
	}

	levels := [][]string{level}
	for len(level) > 1 {
		next := make([]string, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined, err := combine(level[i], level[i+1], algo)
			if err != nil {
				return nil, err
			}
			next[i/2] = combined
		}
		level = next
		levels = append(levels, level)
	}

	t.levels = levels
	t.Root = level[0]
	return t, nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

func combine(left, right string, algo hashing.Algorithm) (string, error) {
	lb, err := hexDecode(left)
	if err != nil {
		return "", fmt.Errorf("merkle: decode left: %w", err)
	}
	rb, err := hexDecode(right)
	if err != nil {
		return "", fmt.Errorf("merkle: decode right: %w", err)
	}
	return hashing.Hash(append(lb, rb...), algo)
}
