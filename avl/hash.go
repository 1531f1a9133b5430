package avl

import (
	"context"

	"github.com/bluesky-social/merkle-avl/kvstore"
)

// nodeSink receives records during a serializing pass.
type nodeSink[K, V any] interface {
	Has(ctx context.Context, hash []byte) (bool, error)
	Put(ctx context.Context, hash []byte, n *Node[K, V]) error
}

// commitSink writes records through w, which is either the store itself or a batch over it.
type commitSink[K, V any] struct {
	store *NodeStore[K, V]
	w     kvstore.Writer

	// records written through w, which a batch does not make visible to store.Has until it commits
	pending map[string]*Node[K, V]
}

func newCommitSink[K, V any](store *NodeStore[K, V], w kvstore.Writer) *commitSink[K, V] {
	return &commitSink[K, V]{
		store:   store,
		w:       w,
		pending: make(map[string]*Node[K, V]),
	}
}

func (cs *commitSink[K, V]) Has(ctx context.Context, hash []byte) (bool, error) {
	if _, ok := cs.pending[string(hash)]; ok {
		return true, nil
	}
	return cs.store.Has(ctx, hash)
}

func (cs *commitSink[K, V]) Put(ctx context.Context, hash []byte, n *Node[K, V]) error {
	if err := cs.store.put(ctx, cs.w, hash, n); err != nil {
		return err
	}
	cs.pending[string(hash)] = n
	return nil
}

func (cs *commitSink[K, V]) written() int {
	return len(cs.pending)
}

// calcHashSerialize computes missing content hashes below and including n, in post-order. With serialize set, every record not already in the sink is written and resident children are compacted to HashRefs.
//
// Returns nil if the caller's reference to n is still correct, otherwise the node the caller must reference instead. n itself is never modified.
func (n *Node[K, V]) calcHashSerialize(ctx context.Context, tc *TreeContext[K, V], sink nodeSink[K, V], serialize bool) (*Node[K, V], error) {
	if n.hash != nil {
		if !serialize {
			return nil, nil
		}
		durable, err := sink.Has(ctx, n.hash)
		if err != nil {
			return nil, err
		}
		if durable {
			return nil, nil
		}
	}

	left, lchanged, err := n.left.calcHashSerialize(ctx, tc, sink, serialize)
	if err != nil {
		return nil, err
	}
	right, rchanged, err := n.right.calcHashSerialize(ctx, tc, sink, serialize)
	if err != nil {
		return nil, err
	}

	out := n
	if lchanged || rchanged {
		out = n.withChildren(left, right)
	}
	if out.hash == nil {
		h, err := tc.hashNode(out)
		if err != nil {
			return nil, err
		}
		out = out.withHash(h)
	}
	if serialize {
		durable := false
		if n.hash == nil {
			// freshly hashed content may still match a stored record
			durable, err = sink.Has(ctx, out.hash)
			if err != nil {
				return nil, err
			}
		}
		if !durable {
			if err := sink.Put(ctx, out.hash, out); err != nil {
				return nil, err
			}
		}
	}

	if out == n {
		return nil, nil
	}
	return out, nil
}

// calcHashSerialize runs the hash engine over a resident subtree. Hash and empty refs are already final. With serialize set, a resident ref is always replaced by a HashRef.
func (r NodeRef[K, V]) calcHashSerialize(ctx context.Context, tc *TreeContext[K, V], sink nodeSink[K, V], serialize bool) (NodeRef[K, V], bool, error) {
	if r.node == nil {
		return r, false, nil
	}
	n, err := r.node.calcHashSerialize(ctx, tc, sink, serialize)
	if err != nil {
		return r, false, err
	}
	changed := n != nil
	if n == nil {
		n = r.node
	}
	if serialize {
		return HashRef[K, V](n.hash), true, nil
	}
	if changed {
		return MemRef(n), true, nil
	}
	return r, false, nil
}
