// merkle.go - Merkle paths and the two tree builders they are checked against.
//
// MerkleTree is the per-action tree over interleaved tags, padded to the next
// power of two. CommitmentTree is the fixed-depth append-only accumulator of
// created commitments. Both hash H(left || right) and pad with PaddingLeaf.

package arm

import (
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// maxTreeLeaves bounds the action tree.
const maxTreeLeaves = 1 << 24

// MerkleNode is one step of an authentication path.
type MerkleNode struct {
	Sibling       digest.Digest `json:"sibling" cbor:"sibling"`
	LeafIsOnRight bool          `json:"leaf_is_on_right" cbor:"leaf_is_on_right"`
}

// MerklePath is ordered from the leaf upwards.
type MerklePath []MerkleNode

// DefaultMerklePath returns depth zero siblings with every leaf on the left.
func DefaultMerklePath(depth int) MerklePath {
	return make(MerklePath, depth)
}

// Root folds the path over leaf.
func (p MerklePath) Root(leaf digest.Digest) digest.Digest {
	cur := leaf
	for _, n := range p {
		if n.LeafIsOnRight {
			cur = digest.HashTwo(n.Sibling, cur)
		} else {
			cur = digest.HashTwo(cur, n.Sibling)
		}
	}
	return cur
}

func (p MerklePath) Len() int { return len(p) }

func hashLayer(layer []digest.Digest, pad digest.Digest) []digest.Digest {
	next := make([]digest.Digest, (len(layer)+1)/2)
	for i := range next {
		right := pad
		if 2*i+1 < len(layer) {
			right = layer[2*i+1]
		}
		next[i] = digest.HashTwo(layer[2*i], right)
	}
	return next
}

// MerkleTree is built from the tags of one action.
type MerkleTree struct {
	leaves []digest.Digest
}

func NewMerkleTree(leaves []digest.Digest) *MerkleTree {
	return &MerkleTree{leaves: append([]digest.Digest(nil), leaves...)}
}

func (t *MerkleTree) Insert(leaf digest.Digest) {
	t.leaves = append(t.leaves, leaf)
}

func (t *MerkleTree) Len() int { return len(t.leaves) }

func (t *MerkleTree) padded() ([]digest.Digest, error) {
	if len(t.leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if len(t.leaves) > maxTreeLeaves {
		return nil, errors.Wrapf(ErrTreeTooLarge, "%d leaves", len(t.leaves))
	}
	n := 1
	for n < len(t.leaves) {
		n <<= 1
	}
	layer := make([]digest.Digest, n)
	copy(layer, t.leaves)
	for i := len(t.leaves); i < n; i++ {
		layer[i] = PaddingLeaf
	}
	return layer, nil
}

// Root returns the root of the padded tree.
func (t *MerkleTree) Root() (digest.Digest, error) {
	layer, err := t.padded()
	if err != nil {
		return digest.Zero, err
	}
	for len(layer) > 1 {
		layer = hashLayer(layer, PaddingLeaf)
	}
	return layer[0], nil
}

// GeneratePath returns the path of the first occurrence of leaf. The padding leaf
// and leaves not in the tree are rejected with ErrInvalidLeaf.
func (t *MerkleTree) GeneratePath(leaf digest.Digest) (MerklePath, error) {
	layer, err := t.padded()
	if err != nil {
		return nil, err
	}
	if leaf == PaddingLeaf {
		return nil, errors.Wrap(ErrInvalidLeaf, "padding leaf")
	}
	pos := -1
	for i, l := range layer {
		if l == leaf {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, errors.Wrapf(ErrInvalidLeaf, "leaf %s not in tree", leaf)
	}
	var path MerklePath
	for len(layer) > 1 {
		onRight := pos%2 == 1
		path = append(path, MerkleNode{Sibling: layer[pos^1], LeafIsOnRight: onRight})
		layer = hashLayer(layer, PaddingLeaf)
		pos /= 2
	}
	return path, nil
}

// CommitmentTree is an append-only tree of fixed depth whose empty subtrees hash
// up from PaddingLeaf.
type CommitmentTree struct {
	depth  int
	leaves []digest.Digest
	zeros  []digest.Digest
}

// NewCommitmentTree creates a tree of the given depth holding leaves.
func NewCommitmentTree(depth int, leaves ...digest.Digest) (*CommitmentTree, error) {
	if depth <= 0 || depth > 62 {
		return nil, errors.Errorf("commitment tree: unsupported depth %d", depth)
	}
	zeros := make([]digest.Digest, depth+1)
	zeros[0] = PaddingLeaf
	for i := 1; i <= depth; i++ {
		zeros[i] = digest.HashTwo(zeros[i-1], zeros[i-1])
	}
	t := &CommitmentTree{depth: depth, zeros: zeros}
	for _, l := range leaves {
		if _, err := t.Append(l); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *CommitmentTree) Depth() int { return t.depth }

func (t *CommitmentTree) Len() int { return len(t.leaves) }

// Leaves returns a copy of the appended leaves in order.
func (t *CommitmentTree) Leaves() []digest.Digest {
	return append([]digest.Digest(nil), t.leaves...)
}

// EmptyRoot is the root of the tree with no leaves.
func (t *CommitmentTree) EmptyRoot() digest.Digest {
	return t.zeros[t.depth]
}

// Append adds leaf and returns its index.
func (t *CommitmentTree) Append(leaf digest.Digest) (int, error) {
	if uint64(len(t.leaves)) >= uint64(1)<<uint(t.depth) {
		return 0, errors.Wrapf(ErrTreeTooLarge, "commitment tree of depth %d is full", t.depth)
	}
	t.leaves = append(t.leaves, leaf)
	return len(t.leaves) - 1, nil
}

func (t *CommitmentTree) Root() digest.Digest {
	if len(t.leaves) == 0 {
		return t.EmptyRoot()
	}
	layer := t.leaves
	for level := 0; level < t.depth; level++ {
		layer = hashLayer(layer, t.zeros[level])
	}
	return layer[0]
}

// Path returns the authentication path of the leaf at index against Root.
func (t *CommitmentTree) Path(index int) (MerklePath, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, errors.Wrapf(ErrInvalidLeaf, "index %d out of range", index)
	}
	path := make(MerklePath, t.depth)
	layer := t.leaves
	pos := index
	for level := 0; level < t.depth; level++ {
		sib := t.zeros[level]
		if pos^1 < len(layer) {
			sib = layer[pos^1]
		}
		path[level] = MerkleNode{Sibling: sib, LeafIsOnRight: pos%2 == 1}
		layer = hashLayer(layer, t.zeros[level])
		pos /= 2
	}
	return path, nil
}
