package avl

import (
	"context"
	"fmt"
)

// findNode is a binary search from ref. Each step may load a node from the store. Returns nil if key is absent.
func (tc *TreeContext[K, V]) findNode(ctx context.Context, ref NodeRef[K, V], key K) (*Node[K, V], error) {
	for {
		n, err := ref.Resolve(ctx, tc)
		if err != nil || n == nil {
			return nil, err
		}
		c := tc.Compare(key, n.data.Key)
		switch {
		case c == 0:
			return n, nil
		case c < 0:
			ref = n.left
		default:
			ref = n.right
		}
	}
}

// At returns the key/value pair at index i in key order (zero based), using subtree ranks to skip whole subtrees.
func (t *Tree[K, V]) At(ctx context.Context, i uint64) (K, V, error) {
	var zk K
	var zv V

	ref := t.root
	for {
		n, err := ref.Resolve(ctx, t.tc)
		if err != nil {
			return zk, zv, err
		}
		if n == nil {
			return zk, zv, fmt.Errorf("index %d: %w", i, ErrIndexOutOfRange)
		}
		left, err := n.left.Resolve(ctx, t.tc)
		if err != nil {
			return zk, zv, err
		}
		lr := rankOf(left)
		switch {
		case i < lr:
			ref = n.left
		case i == lr:
			return n.data.Key, n.data.Value, nil
		default:
			i -= lr + 1
			ref = n.right
		}
	}
}

// IndexOf returns the position of key in key order. The boolean is false if the key is absent.
func (t *Tree[K, V]) IndexOf(ctx context.Context, key K) (uint64, bool, error) {
	var idx uint64
	ref := t.root
	for {
		n, err := ref.Resolve(ctx, t.tc)
		if err != nil || n == nil {
			return 0, false, err
		}
		c := t.tc.Compare(key, n.data.Key)
		if c < 0 {
			ref = n.left
			continue
		}
		left, err := n.left.Resolve(ctx, t.tc)
		if err != nil {
			return 0, false, err
		}
		if c == 0 {
			return idx + rankOf(left), true, nil
		}
		idx += rankOf(left) + 1
		ref = n.right
	}
}
