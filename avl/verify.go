package avl

import (
	"bytes"
	"context"
	"fmt"
)

// Verify walks the whole tree, loading every stored node, and checks ordering, balance, heights, ranks and content hashes. Structural problems are reported as ErrInvalidTree.
func (t *Tree[K, V]) Verify(ctx context.Context) error {
	_, err := t.tc.verifyStructure(ctx, t.root, nil, nil)
	return err
}

func (tc *TreeContext[K, V]) verifyStructure(ctx context.Context, ref NodeRef[K, V], lo, hi *K) (*Node[K, V], error) {
	n, err := ref.Resolve(ctx, tc)
	if err != nil || n == nil {
		return nil, err
	}
	key := n.data.Key
	if lo != nil && tc.Compare(key, *lo) <= 0 {
		return nil, fmt.Errorf("%w: out of order keys", ErrInvalidTree)
	}
	if hi != nil && tc.Compare(key, *hi) >= 0 {
		return nil, fmt.Errorf("%w: out of order keys", ErrInvalidTree)
	}

	left, err := tc.verifyStructure(ctx, n.left, lo, &key)
	if err != nil {
		return nil, err
	}
	right, err := tc.verifyStructure(ctx, n.right, &key, hi)
	if err != nil {
		return nil, err
	}

	if bf := balanceFactor(left, right); bf > 1 || bf < -1 {
		return nil, fmt.Errorf("%w: unbalanced node (balance factor %d)", ErrInvalidTree, bf)
	}
	if want := 1 + max(heightOf(left), heightOf(right)); n.data.Height != want {
		return nil, fmt.Errorf("%w: node has incorrect height: %d (expected %d)", ErrInvalidTree, n.data.Height, want)
	}
	if want := rankOf(left) + rankOf(right) + 1; n.data.Rank != want {
		return nil, fmt.Errorf("%w: node has incorrect rank: %d (expected %d)", ErrInvalidTree, n.data.Rank, want)
	}

	if expected := ref.Hash(); expected != nil {
		if (!n.left.IsEmpty() && n.left.Hash() == nil) || (!n.right.IsEmpty() && n.right.Hash() == nil) {
			return nil, fmt.Errorf("%w: hashed node has unhashed child", ErrInvalidTree)
		}
		h, err := tc.hashNode(n)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(h, expected) {
			return nil, fmt.Errorf("%w: content hash mismatch for node %x", ErrInvalidTree, expected)
		}
	}
	return n, nil
}
