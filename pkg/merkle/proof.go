package merkle

import (
	"encoding/hex"
	"errors"

	"github.com/agentgov/governance-core/pkg/hashing"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Side names which side of a parent hash a sibling occupies.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// ProofStep is one sibling hash encountered walking from a leaf to the root.
type ProofStep struct {
	SiblingHash string
	Side        Side
}

// Proof is an inclusion proof for one entry within a Tree.
type Proof struct {
	EntryID  string
	LeafHash string
	Steps    []ProofStep
	RootHash string
}

var ErrEntryNotInTree = errors.New("merkle: entry not found in tree")

// Proof builds an inclusion proof for entryID.
func (t *Tree) Proof(entryID string) (Proof, error) {
	idx := -1
	for i, l := range t.Leaves {
		if l.EntryID == entryID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Proof{}, ErrEntryNotInTree
	}

	p := Proof{EntryID: entryID, LeafHash: t.Leaves[idx].Hash, RootHash: t.Root}
	if len(t.levels) == 0 {
		return p, nil
	}

	pos := idx
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		var siblingIdx int
		var side Side
		if pos%2 == 0 {
			siblingIdx = pos + 1
			side = Right
		} else {
			siblingIdx = pos - 1
			side = Left
		}
		p.Steps = append(p.Steps, ProofStep{SiblingHash: nodes[siblingIdx], Side: side})
		pos /= 2
	}
	return p, nil
}

// Verify folds proof.LeafHash with the sibling path in order, hashing
// in the (left || right) direction at each step, and checks the result
// against proof.RootHash (and expectedRoot, if non-empty).
func Verify(proof Proof, expectedRoot string, algo hashing.Algorithm) bool {
	current := proof.LeafHash
	for _, step := range proof.Steps {
		var left, right string
		if step.Side == Right {
			left, right = current, step.SiblingHash
		} else {
			left, right = step.SiblingHash, current
		}
		combined, err := combine(left, right, algo)
		if err != nil {
			return false
		}
		current = combined
	}
	if expectedRoot != "" && current != expectedRoot {
		return false
	}
	return current == proof.RootHash
}
