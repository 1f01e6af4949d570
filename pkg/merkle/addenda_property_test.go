//go:build property
// +build property

package merkle_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentgov/governance-core/pkg/hashing"
	"github.com/agentgov/governance-core/pkg/merkle"
)

// TestMerkleProofsAllVerifyAgainstSameRoot is spec.md §8 universal
// property 3: for any batch of entries, building a tree and requesting
// a proof for each entry yields proofs that all verify against the
// same root.
func TestMerkleProofsAllVerifyAgainstSameRoot(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every entry's proof verifies against the tree root", prop.ForAll(
		func(payloads []string) bool {
			if len(payloads) == 0 {
				return true
			}
			ids := make([]string, len(payloads))
			hashes := make([]string, len(payloads))
			for i, p := range payloads {
				ids[i] = fmt.Sprintf("entry-%d", i)
				h, err := hashing.Hash([]byte(p), hashing.SHA256)
				if err != nil {
					return false
				}
				hashes[i] = h
			}

			tree, err := merkle.Build(ids, hashes, hashing.SHA256)
			if err != nil {
				return false
			}
			for _, id := range ids {
				proof, err := tree.Proof(id)
				if err != nil {
					return false
				}
				if !merkle.Verify(proof, tree.Root, hashing.SHA256) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestMerkleVerifyFailsOnTamperedLeafHash extends scenario S2 into a
// property: tampering any single proof's LeafHash always fails
// verification, for any batch size.
func TestMerkleVerifyFailsOnTamperedLeafHash(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tampering leafHash breaks verification", prop.ForAll(
		func(payloads []string, tamper string) bool {
			if len(payloads) == 0 {
				return true
			}
			ids := make([]string, len(payloads))
			hashes := make([]string, len(payloads))
			for i, p := range payloads {
				ids[i] = fmt.Sprintf("entry-%d", i)
				h, err := hashing.Hash([]byte(p), hashing.SHA256)
				if err != nil {
					return false
				}
				hashes[i] = h
			}

			tree, err := merkle.Build(ids, hashes, hashing.SHA256)
			if err != nil {
				return false
			}
			proof, err := tree.Proof(ids[0])
			if err != nil {
				return false
			}
			tamperedHash, err := hashing.Hash([]byte(tamper+"-tampered"), hashing.SHA256)
			if err != nil {
				return false
			}
			if tamperedHash == proof.LeafHash {
				return true // collided by chance, not a counterexample
			}
			proof.LeafHash = tamperedHash
			return !merkle.Verify(proof, tree.Root, hashing.SHA256)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
