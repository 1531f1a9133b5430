package avl

import (
	"context"
	"fmt"
)

// NodeData is the payload of a node. It is shared by pointer between a node and its re-hashed or re-parented copies.
type NodeData[K, V any] struct {
	Key    K
	Value  V
	Height uint32 // 1 for a leaf
	Rank   uint64 // number of nodes in the subtree, including this one
}

// Node is immutable once constructed. Hashing or compacting a node produces a copy.
type Node[K, V any] struct {
	data  *NodeData[K, V]
	left  NodeRef[K, V]
	right NodeRef[K, V]

	// nil until computed by the hash engine
	hash []byte
}

func (n *Node[K, V]) Data() *NodeData[K, V] {
	return n.data
}

func (n *Node[K, V]) Key() K {
	return n.data.Key
}

func (n *Node[K, V]) Value() V {
	return n.data.Value
}

func (n *Node[K, V]) Height() uint32 {
	return n.data.Height
}

func (n *Node[K, V]) Rank() uint64 {
	return n.data.Rank
}

func (n *Node[K, V]) Left() NodeRef[K, V] {
	return n.left
}

func (n *Node[K, V]) Right() NodeRef[K, V] {
	return n.right
}

// Hash returns the node's content hash, or nil if it has not been computed yet.
func (n *Node[K, V]) Hash() []byte {
	return n.hash
}

func (n *Node[K, V]) withHash(hash []byte) *Node[K, V] {
	return &Node[K, V]{data: n.data, left: n.left, right: n.right, hash: hash}
}

// child refs may change representation (MemRef to HashRef) without changing content, so the hash is kept
func (n *Node[K, V]) withChildren(left, right NodeRef[K, V]) *Node[K, V] {
	return &Node[K, V]{data: n.data, left: left, right: right, hash: n.hash}
}

func heightOf[K, V any](n *Node[K, V]) uint32 {
	if n == nil {
		return 0
	}
	return n.data.Height
}

func rankOf[K, V any](n *Node[K, V]) uint64 {
	if n == nil {
		return 0
	}
	return n.data.Rank
}

type RefKind int

const (
	RefEmpty RefKind = iota
	RefHash
	RefMem
)

func (k RefKind) String() string {
	switch k {
	case RefEmpty:
		return "NoRef"
	case RefHash:
		return "HashRef"
	case RefMem:
		return "MemRef"
	default:
		return fmt.Sprintf("RefKind(%d)", int(k))
	}
}

// NodeRef is a handle to a subtree: resident in memory, known only by hash, or empty. The zero value is empty.
type NodeRef[K, V any] struct {
	hash []byte
	node *Node[K, V]
}

// HashRef refers to a stored node by content hash. An empty hash gives an empty ref.
func HashRef[K, V any](hash []byte) NodeRef[K, V] {
	if len(hash) == 0 {
		return NodeRef[K, V]{}
	}
	return NodeRef[K, V]{hash: hash}
}

// MemRef refers to a resident node. A nil node gives an empty ref.
func MemRef[K, V any](n *Node[K, V]) NodeRef[K, V] {
	return NodeRef[K, V]{node: n}
}

func NoRef[K, V any]() NodeRef[K, V] {
	return NodeRef[K, V]{}
}

func (r NodeRef[K, V]) Kind() RefKind {
	switch {
	case r.node != nil:
		return RefMem
	case len(r.hash) > 0:
		return RefHash
	default:
		return RefEmpty
	}
}

func (r NodeRef[K, V]) IsEmpty() bool {
	return r.node == nil && len(r.hash) == 0
}

// Node returns the resident node, or nil for hash and empty refs.
func (r NodeRef[K, V]) Node() *Node[K, V] {
	return r.node
}

// Hash returns the content hash of the referenced subtree if it is known. It is nil for empty refs and for resident nodes which have not been hashed.
func (r NodeRef[K, V]) Hash() []byte {
	if r.node != nil {
		return r.node.hash
	}
	return r.hash
}

// Resolve returns the referenced node, loading it from the context's store if needed. Empty refs resolve to nil.
func (r NodeRef[K, V]) Resolve(ctx context.Context, tc *TreeContext[K, V]) (*Node[K, V], error) {
	if r.node != nil {
		return r.node, nil
	}
	if len(r.hash) == 0 {
		return nil, nil
	}
	if tc.Store == nil {
		return nil, fmt.Errorf("resolving node %x: %w", r.hash, ErrMissingStore)
	}
	n, err := tc.Store.Get(ctx, r.hash)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("resolving node %x: %w", r.hash, ErrMissingNode)
	}
	return n, nil
}
