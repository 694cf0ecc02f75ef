package merkle

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func makeLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = crypto.Keccak256Hash([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return leaves
}

func TestTreeProofsVerify(t *testing.T) {
	for n := 1; n <= 9; n++ {
		leaves := makeLeaves(n)
		tree := NewTree(leaves)
		verifier := NewVerifier(16)
		for i, leaf := range leaves {
			proof, err := tree.Prove(i)
			require.NoError(t, err)

			ok, err := verifier.Verify(tree.Root(), leaf, proof)
			require.NoError(t, err)
			require.True(t, ok, "n=%d leaf=%d", n, i)
		}
	}
}

func TestTamperedLeafFailsVerification(t *testing.T) {
	leaves := makeLeaves(5)
	tree := NewTree(leaves)
	verifier := NewVerifier(16)

	proof, err := tree.Prove(2)
	require.NoError(t, err)

	tampered := leaves[2]
	tampered[0] ^= 0xff
	ok, err := verifier.Verify(tree.Root(), tampered, proof)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWrongProofFailsVerification(t *testing.T) {
	leaves := makeLeaves(4)
	tree := NewTree(leaves)
	verifier := NewVerifier(16)

	// A valid proof for leaf 1 must not prove leaf 0.
	proof, err := tree.Prove(1)
	require.NoError(t, err)
	ok, err := verifier.Verify(tree.Root(), leaves[0], proof)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExcessiveDepthIsMalformed(t *testing.T) {
	verifier := NewVerifier(16)
	proof := make([]common.Hash, MaxProofDepth+1)
	_, err := verifier.Verify(common.Hash{}, common.Hash{}, proof)
	require.ErrorIs(t, err, ErrMalformedProof)
}

func TestSingleLeafTree(t *testing.T) {
	leaves := makeLeaves(1)
	tree := NewTree(leaves)
	require.Equal(t, leaves[0], tree.Root())

	proof, err := tree.Prove(0)
	require.NoError(t, err)
	require.Empty(t, proof)
}

func TestProveOutOfRange(t *testing.T) {
	tree := NewTree(makeLeaves(3))
	_, err := tree.Prove(3)
	require.Error(t, err)
	_, err = tree.Prove(-1)
	require.Error(t, err)
}

func TestVerifierCacheConsistency(t *testing.T) {
	leaves := makeLeaves(4)
	tree := NewTree(leaves)
	verifier := NewVerifier(16)

	proof, err := tree.Prove(0)
	require.NoError(t, err)

	// Cached and uncached answers must agree, and a different root must
	// miss the cache entry entirely.
	for i := 0; i < 3; i++ {
		ok, err := verifier.Verify(tree.Root(), leaves[0], proof)
		require.NoError(t, err)
		require.True(t, ok)
	}
	otherRoot := crypto.Keccak256Hash([]byte("other"))
	ok, err := verifier.Verify(otherRoot, leaves[0], proof)
	require.NoError(t, err)
	require.False(t, ok)
}
