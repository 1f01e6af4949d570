//go:build property
// +build property

package hashing_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentgov/governance-core/pkg/hashing"
)

// TestCanonicalDeterminism verifies Canonical(v) == Canonical(v) regardless
// of map key insertion order.
func TestCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical encoding is deterministic across key order", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}
			if len(obj) == 0 {
				return true
			}

			a, err1 := hashing.Canonical(obj)
			b, err2 := hashing.Canonical(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestHashDeterminism verifies Hash(data, algo) is a pure function of its
// inputs.
func TestHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is deterministic for identical input", prop.ForAll(
		func(payload string) bool {
			h1, err1 := hashing.Hash([]byte(payload), hashing.SHA256)
			h2, err2 := hashing.Hash([]byte(payload), hashing.SHA256)
			if err1 != nil || err2 != nil {
				return false
			}
			return h1 == h2
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestHashDistinctAlgorithmsDiverge verifies different algorithms do not
// collide on the same input (sanity, not a cryptographic claim).
func TestHashDistinctAlgorithmsDiverge(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("sha256 and sha512 digests differ for non-empty input", prop.ForAll(
		func(payload string) bool {
			if payload == "" {
				return true
			}
			h256, err := hashing.Hash([]byte(payload), hashing.SHA256)
			if err != nil {
				return false
			}
			h512, err := hashing.Hash([]byte(payload), hashing.SHA512)
			if err != nil {
				return false
			}
			return h256 != h512
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
