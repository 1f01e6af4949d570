package merkle

import (
	"testing"

	"github.com/agentgov/governance-core/pkg/hashing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(t *testing.T, s string) string {
	t.Helper()
	h, err := hashing.Hash([]byte(s), hashing.SHA256)
	require.NoError(t, err)
	return h
}

// TestBuildAndProof_FourEntries is scenario S2: build a tree over 4
// entries, request a proof for index 1, verify returns true; mutate
// proof.LeafHash and verify returns false.
func TestBuildAndProof_FourEntries(t *testing.T) {
	ids := []string{"e0", "e1", "e2", "e3"}
	hashes := []string{hashOf(t, "e0"), hashOf(t, "e1"), hashOf(t, "e2"), hashOf(t, "e3")}

	tree, err := Build(ids, hashes, hashing.SHA256)
	require.NoError(t, err)
	require.NotEmpty(t, tree.Root)

	proof, err := tree.Proof("e1")
	require.NoError(t, err)
	assert.True(t, Verify(proof, tree.Root, hashing.SHA256))

	proof.LeafHash = hashOf(t, "tampered")
	assert.False(t, Verify(proof, tree.Root, hashing.SHA256))
}

func TestBuild_EmptyBatchHasEmptyRoot(t *testing.T) {
	tree, err := Build(nil, nil, hashing.SHA256)
	require.NoError(t, err)
	assert.Empty(t, tree.Root)
	assert.Equal(t, 0, tree.Depth())
}

func TestBuild_SingleEntryRootEqualsLeafHash(t *testing.T) {
	h := hashOf(t, "only")
	tree, err := Build([]string{"only"}, []string{h}, hashing.SHA256)
	require.NoError(t, err)
	assert.Equal(t, h, tree.Root)

	proof, err := tree.Proof("only")
	require.NoError(t, err)
	assert.Empty(t, proof.Steps)
	assert.True(t, Verify(proof, tree.Root, hashing.SHA256))
}

func TestBuild_MismatchedLengthsError(t *testing.T) {
	_, err := Build([]string{"a", "b"}, []string{"only-one"}, hashing.SHA256)
	assert.Error(t, err)
}

func TestProof_UnknownEntryErrors(t *testing.T) {
	ids := []string{"a", "b"}
	hashes := []string{hashOf(t, "a"), hashOf(t, "b")}
	tree, err := Build(ids, hashes, hashing.SHA256)
	require.NoError(t, err)

	_, err = tree.Proof("missing")
	assert.ErrorIs(t, err, ErrEntryNotInTree)
}

func TestVerify_WrongExpectedRootFails(t *testing.T) {
	ids := []string{"a", "b", "c"}
	hashes := []string{hashOf(t, "a"), hashOf(t, "b"), hashOf(t, "c")}
	tree, err := Build(ids, hashes, hashing.SHA256)
	require.NoError(t, err)

	proof, err := tree.Proof("c")
	require.NoError(t, err)
	assert.False(t, Verify(proof, hashOf(t, "some-other-root"), hashing.SHA256))
}
