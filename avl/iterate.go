package avl

import (
	"context"
	"errors"

	"github.com/bluesky-social/merkle-avl/kvstore"
)

// ErrStop may be returned from an iteration callback to end iteration early without error.
var ErrStop = kvstore.ErrStop

// Iterate calls fn for every key in [start, end) in ascending order, or descending if reverse is set. A nil bound is open. Subtrees outside the range are not loaded.
func (t *Tree[K, V]) Iterate(ctx context.Context, start, end *K, reverse bool, fn func(key K, value V) error) error {
	err := t.tc.walk(ctx, t.root, start, end, reverse, fn)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func (tc *TreeContext[K, V]) walk(ctx context.Context, ref NodeRef[K, V], start, end *K, reverse bool, fn func(K, V) error) error {
	n, err := ref.Resolve(ctx, tc)
	if err != nil || n == nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := n.data.Key
	afterStart := start == nil || tc.Compare(key, *start) >= 0
	beforeEnd := end == nil || tc.Compare(key, *end) < 0
	// the left subtree only holds keys below this one, the right only keys above
	visitLeft := start == nil || tc.Compare(key, *start) > 0
	visitRight := beforeEnd

	first, second := n.left, n.right
	visitFirst, visitSecond := visitLeft, visitRight
	if reverse {
		first, second = n.right, n.left
		visitFirst, visitSecond = visitRight, visitLeft
	}

	if visitFirst {
		if err := tc.walk(ctx, first, start, end, reverse, fn); err != nil {
			return err
		}
	}
	if afterStart && beforeEnd {
		if err := fn(key, n.data.Value); err != nil {
			return err
		}
	}
	if visitSecond {
		if err := tc.walk(ctx, second, start, end, reverse, fn); err != nil {
			return err
		}
	}
	return nil
}
