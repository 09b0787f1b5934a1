package arm

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcemachine/internal/digest"
)

func leaves(n int) []digest.Digest {
	out := make([]digest.Digest, n)
	for i := range out {
		out[i] = digest.Hash([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return out
}

func TestMerkleTreeRoundTrip(t *testing.T) {
	for n := 1; n <= 9; n++ {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			ls := leaves(n)
			tree := NewMerkleTree(ls)
			root, err := tree.Root()
			require.NoError(t, err)

			for _, leaf := range ls {
				path, err := tree.GeneratePath(leaf)
				require.NoError(t, err)
				assert.Equal(t, root, path.Root(leaf))

				if path.Len() == 0 {
					continue
				}
				flipped := append(MerklePath(nil), path...)
				flipped[0].Sibling[3] ^= 0x10
				assert.NotEqual(t, root, flipped.Root(leaf))

				swapped := append(MerklePath(nil), path...)
				swapped[len(swapped)-1].LeafIsOnRight = !swapped[len(swapped)-1].LeafIsOnRight
				assert.NotEqual(t, root, swapped.Root(leaf))

				bad := leaf
				bad[31] ^= 1
				assert.NotEqual(t, root, path.Root(bad))
			}
		})
	}
}

func TestMerkleTreeHashOrder(t *testing.T) {
	ls := leaves(3)
	root, err := NewMerkleTree(ls).Root()
	require.NoError(t, err)
	want := digest.HashTwo(digest.HashTwo(ls[0], ls[1]), digest.HashTwo(ls[2], PaddingLeaf))
	assert.Equal(t, want, root)

	path, err := NewMerkleTree(ls).GeneratePath(ls[2])
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, MerkleNode{Sibling: PaddingLeaf, LeafIsOnRight: false}, path[0])
	assert.Equal(t, MerkleNode{Sibling: digest.HashTwo(ls[0], ls[1]), LeafIsOnRight: true}, path[1])
}

func TestMerkleTreeErrors(t *testing.T) {
	_, err := NewMerkleTree(nil).Root()
	assert.True(t, errors.Is(err, ErrEmptyTree))
	_, err = NewMerkleTree(nil).GeneratePath(digest.Zero)
	assert.True(t, errors.Is(err, ErrEmptyTree))

	tree := NewMerkleTree(leaves(3))
	_, err = tree.GeneratePath(PaddingLeaf)
	assert.True(t, errors.Is(err, ErrInvalidLeaf))
	_, err = tree.GeneratePath(digest.Hash([]byte("absent")))
	assert.True(t, errors.Is(err, ErrInvalidLeaf))

	tree.Insert(digest.Hash([]byte("late")))
	assert.Equal(t, 4, tree.Len())
}

func TestDefaultMerklePath(t *testing.T) {
	leaf := digest.Hash([]byte("x"))
	want := digest.HashTwo(digest.HashTwo(leaf, digest.Zero), digest.Zero)
	assert.Equal(t, want, DefaultMerklePath(2).Root(leaf))
	assert.Equal(t, leaf, DefaultMerklePath(0).Root(leaf))
}

func TestCommitmentTreeMatchesMerkleTree(t *testing.T) {
	const depth = 3
	ls := leaves(5)
	ct, err := NewCommitmentTree(depth, ls...)
	require.NoError(t, err)

	want, err := NewMerkleTree(ls).Root()
	require.NoError(t, err)
	assert.Equal(t, want, ct.Root())

	for i, leaf := range ls {
		path, err := ct.Path(i)
		require.NoError(t, err)
		require.Len(t, path, depth)
		assert.Equal(t, ct.Root(), path.Root(leaf))

		ref, err := NewMerkleTree(ls).GeneratePath(leaf)
		require.NoError(t, err)
		assert.Equal(t, ref, path)
	}

	_, err = ct.Path(5)
	assert.True(t, errors.Is(err, ErrInvalidLeaf))
}

func TestCommitmentTreeEmptyAndFull(t *testing.T) {
	ct, err := NewCommitmentTree(2)
	require.NoError(t, err)
	pad := []digest.Digest{PaddingLeaf, PaddingLeaf, PaddingLeaf, PaddingLeaf}
	want, err := NewMerkleTree(pad).Root()
	require.NoError(t, err)
	assert.Equal(t, want, ct.Root())
	assert.Equal(t, want, ct.EmptyRoot())

	for _, l := range leaves(4) {
		_, err := ct.Append(l)
		require.NoError(t, err)
	}
	_, err = ct.Append(digest.Zero)
	assert.True(t, errors.Is(err, ErrTreeTooLarge))
	assert.Equal(t, leaves(4), ct.Leaves())

	_, err = NewCommitmentTree(0)
	assert.Error(t, err)
}
