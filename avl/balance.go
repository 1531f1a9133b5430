package avl

import (
	"context"
)

// A subtree during rebalancing: the ref its parent holds plus the resolved node (nil when empty). Keeping the original ref means untouched siblings are never re-wrapped, so HashRefs stay HashRefs.
type subtree[K, V any] struct {
	ref  NodeRef[K, V]
	node *Node[K, V]
}

func (tc *TreeContext[K, V]) load(ctx context.Context, ref NodeRef[K, V]) (subtree[K, V], error) {
	n, err := ref.Resolve(ctx, tc)
	if err != nil {
		return subtree[K, V]{}, err
	}
	return subtree[K, V]{ref: ref, node: n}, nil
}

func makeNode[K, V any](key K, value V, left, right subtree[K, V]) subtree[K, V] {
	n := &Node[K, V]{
		data: &NodeData[K, V]{
			Key:    key,
			Value:  value,
			Height: 1 + max(heightOf(left.node), heightOf(right.node)),
			Rank:   rankOf(left.node) + rankOf(right.node) + 1,
		},
		left:  left.ref,
		right: right.ref,
	}
	return subtree[K, V]{ref: MemRef(n), node: n}
}

func balanceFactor[K, V any](left, right *Node[K, V]) int {
	return int(heightOf(left)) - int(heightOf(right))
}

// balance builds a node from key/value and two subtrees whose heights differ by at most two, rotating as needed to restore the AVL property.
func (tc *TreeContext[K, V]) balance(ctx context.Context, key K, value V, left, right subtree[K, V]) (subtree[K, V], error) {
	switch diff := balanceFactor(left.node, right.node); {
	case diff > 2 || diff < -2:
		invariantViolation("balance", "subtree heights differ by %d", diff)
	case diff == 2:
		l := left.node
		ll, err := tc.load(ctx, l.left)
		if err != nil {
			return subtree[K, V]{}, err
		}
		lr, err := tc.load(ctx, l.right)
		if err != nil {
			return subtree[K, V]{}, err
		}

		if balanceFactor(ll.node, lr.node) >= 0 {
			// single right rotation
			return makeNode(l.data.Key, l.data.Value, ll, makeNode(key, value, lr, right)), nil
		}

		// left-right double rotation
		if lr.node == nil {
			invariantViolation("rotate left-right", "left child is right-heavy but has no right child")
		}
		lrl, err := tc.load(ctx, lr.node.left)
		if err != nil {
			return subtree[K, V]{}, err
		}
		lrr, err := tc.load(ctx, lr.node.right)
		if err != nil {
			return subtree[K, V]{}, err
		}
		return makeNode(lr.node.data.Key, lr.node.data.Value,
			makeNode(l.data.Key, l.data.Value, ll, lrl),
			makeNode(key, value, lrr, right)), nil
	case diff == -2:
		r := right.node
		rl, err := tc.load(ctx, r.left)
		if err != nil {
			return subtree[K, V]{}, err
		}
		rr, err := tc.load(ctx, r.right)
		if err != nil {
			return subtree[K, V]{}, err
		}

		if balanceFactor(rl.node, rr.node) <= 0 {
			// single left rotation
			return makeNode(r.data.Key, r.data.Value, makeNode(key, value, left, rl), rr), nil
		}

		// right-left double rotation
		if rl.node == nil {
			invariantViolation("rotate right-left", "right child is left-heavy but has no left child")
		}
		rll, err := tc.load(ctx, rl.node.left)
		if err != nil {
			return subtree[K, V]{}, err
		}
		rlr, err := tc.load(ctx, rl.node.right)
		if err != nil {
			return subtree[K, V]{}, err
		}
		return makeNode(rl.node.data.Key, rl.node.data.Value,
			makeNode(key, value, left, rll),
			makeNode(r.data.Key, r.data.Value, rlr, rr)), nil
	}
	return makeNode(key, value, left, right), nil
}

func (tc *TreeContext[K, V]) insert(ctx context.Context, ref NodeRef[K, V], key K, value V) (subtree[K, V], error) {
	n, err := ref.Resolve(ctx, tc)
	if err != nil {
		return subtree[K, V]{}, err
	}
	if n == nil {
		return makeNode(key, value, subtree[K, V]{}, subtree[K, V]{}), nil
	}

	c := tc.Compare(key, n.data.Key)
	switch {
	case c < 0:
		left, err := tc.insert(ctx, n.left, key, value)
		if err != nil {
			return subtree[K, V]{}, err
		}
		right, err := tc.load(ctx, n.right)
		if err != nil {
			return subtree[K, V]{}, err
		}
		return tc.balance(ctx, n.data.Key, n.data.Value, left, right)
	case c > 0:
		left, err := tc.load(ctx, n.left)
		if err != nil {
			return subtree[K, V]{}, err
		}
		right, err := tc.insert(ctx, n.right, key, value)
		if err != nil {
			return subtree[K, V]{}, err
		}
		return tc.balance(ctx, n.data.Key, n.data.Value, left, right)
	default:
		// replace the value only. shape, height and rank are unchanged
		nn := &Node[K, V]{
			data: &NodeData[K, V]{
				Key:    n.data.Key,
				Value:  value,
				Height: n.data.Height,
				Rank:   n.data.Rank,
			},
			left:  n.left,
			right: n.right,
		}
		return subtree[K, V]{ref: MemRef(nn), node: nn}, nil
	}
}
