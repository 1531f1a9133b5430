package avl

import (
	"context"
)

// remove deletes key from the subtree at ref. If key is not present the original subtree is returned and removed is false.
func (tc *TreeContext[K, V]) remove(ctx context.Context, ref NodeRef[K, V], key K) (out subtree[K, V], removed bool, err error) {
	cur, err := tc.load(ctx, ref)
	if err != nil || cur.node == nil {
		return cur, false, err
	}
	n := cur.node

	c := tc.Compare(key, n.data.Key)
	switch {
	case c < 0:
		left, removed, err := tc.remove(ctx, n.left, key)
		if err != nil || !removed {
			return cur, false, err
		}
		right, err := tc.load(ctx, n.right)
		if err != nil {
			return cur, false, err
		}
		out, err := tc.balance(ctx, n.data.Key, n.data.Value, left, right)
		return out, err == nil, err
	case c > 0:
		right, removed, err := tc.remove(ctx, n.right, key)
		if err != nil || !removed {
			return cur, false, err
		}
		left, err := tc.load(ctx, n.left)
		if err != nil {
			return cur, false, err
		}
		out, err := tc.balance(ctx, n.data.Key, n.data.Value, left, right)
		return out, err == nil, err
	}

	left, err := tc.load(ctx, n.left)
	if err != nil {
		return cur, false, err
	}
	right, err := tc.load(ctx, n.right)
	if err != nil {
		return cur, false, err
	}
	if left.node == nil {
		return right, true, nil
	}
	if right.node == nil {
		return left, true, nil
	}

	// two children: the in-order successor takes this node's place
	rest, succ, err := tc.removeMin(ctx, right)
	if err != nil {
		return cur, false, err
	}
	out, err = tc.balance(ctx, succ.Key, succ.Value, left, rest)
	return out, err == nil, err
}

// removeMin detaches the smallest node of a non-empty subtree, returning the remaining subtree and the detached node's data.
func (tc *TreeContext[K, V]) removeMin(ctx context.Context, st subtree[K, V]) (subtree[K, V], *NodeData[K, V], error) {
	n := st.node
	left, err := tc.load(ctx, n.left)
	if err != nil {
		return st, nil, err
	}
	if left.node == nil {
		right, err := tc.load(ctx, n.right)
		if err != nil {
			return st, nil, err
		}
		return right, n.data, nil
	}

	rest, first, err := tc.removeMin(ctx, left)
	if err != nil {
		return st, nil, err
	}
	right, err := tc.load(ctx, n.right)
	if err != nil {
		return st, nil, err
	}
	out, err := tc.balance(ctx, n.data.Key, n.data.Value, rest, right)
	return out, first, err
}
