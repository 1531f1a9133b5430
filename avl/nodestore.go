package avl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"github.com/bluesky-social/merkle-avl/lrucache"
)

const (
	nodePrefix    byte = 0x00
	versionPrefix byte = 0x01
)

// NodeKey returns the store key for the node record with the given content hash.
func NodeKey(hash []byte) []byte {
	k := make([]byte, 0, len(hash)+1)
	k = append(k, nodePrefix)
	return append(k, hash...)
}

// NodeStore reads and writes node records, keyed by content hash, in a raw KVStore.
type NodeStore[K, V any] struct {
	kv     kvstore.KVStore
	keys   Marshaller[K]
	values Marshaller[V]

	// decoded nodes by string(hash). only ever holds nodes which are durable in kv
	cache *lrucache.Cache[string, *Node[K, V]]

	log *slog.Logger
}

// NewNodeStore creates a node store. cache and log may be nil.
func NewNodeStore[K, V any](kv kvstore.KVStore, keys Marshaller[K], values Marshaller[V], cache *lrucache.Cache[string, *Node[K, V]], log *slog.Logger) *NodeStore[K, V] {
	if log == nil {
		log = slog.Default().With("system", "avl")
	}
	return &NodeStore[K, V]{
		kv:     kv,
		keys:   keys,
		values: values,
		cache:  cache,
		log:    log,
	}
}

// KV returns the underlying raw store.
func (ns *NodeStore[K, V]) KV() kvstore.KVStore {
	return ns.kv
}

// Get loads the node with the given content hash. It returns (nil, nil) if there is no such record.
func (ns *NodeStore[K, V]) Get(ctx context.Context, hash []byte) (*Node[K, V], error) {
	if ns.cache != nil {
		if n, ok := ns.cache.Get(string(hash)); ok {
			return n, nil
		}
	}

	b, err := ns.kv.Get(ctx, NodeKey(hash))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %x: %w: %w", hash, ErrStorage, err)
	}

	n, err := ns.decodeNode(append([]byte(nil), hash...), b)
	if err != nil {
		return nil, err
	}
	nodesLoaded.Inc()
	ns.log.Debug("loaded node", "hash", fmt.Sprintf("%x", hash), "height", n.data.Height)

	if ns.cache != nil {
		ns.cache.Put(string(hash), n)
	}
	return n, nil
}

func (ns *NodeStore[K, V]) Has(ctx context.Context, hash []byte) (bool, error) {
	if ns.cache != nil && ns.cache.Contains(string(hash)) {
		return true, nil
	}
	ok, err := ns.kv.Has(ctx, NodeKey(hash))
	if err != nil {
		return false, fmt.Errorf("checking node %x: %w: %w", hash, ErrStorage, err)
	}
	return ok, nil
}

// Set writes the record for n under hash. Both of n's children must already be hashed.
func (ns *NodeStore[K, V]) Set(ctx context.Context, hash []byte, n *Node[K, V]) error {
	return ns.put(ctx, ns.kv, hash, n)
}

func (ns *NodeStore[K, V]) put(ctx context.Context, w kvstore.Writer, hash []byte, n *Node[K, V]) error {
	b, err := ns.encodeNode(n)
	if err != nil {
		return err
	}
	if err := w.Set(ctx, NodeKey(hash), b); err != nil {
		return fmt.Errorf("writing node %x: %w: %w", hash, ErrStorage, err)
	}
	return nil
}

// Delete removes a node record. Nothing in this package deletes records; pruning old versions is up to the caller.
func (ns *NodeStore[K, V]) Delete(ctx context.Context, hash []byte) error {
	if ns.cache != nil {
		ns.cache.Remove(string(hash))
	}
	if err := ns.kv.Delete(ctx, NodeKey(hash)); err != nil {
		return fmt.Errorf("deleting node %x: %w: %w", hash, ErrStorage, err)
	}
	return nil
}

// cache nodes which have just become durable
func (ns *NodeStore[K, V]) remember(n *Node[K, V]) {
	if ns.cache != nil && n.hash != nil {
		ns.cache.Put(string(n.hash), n)
	}
}
