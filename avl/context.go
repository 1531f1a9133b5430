package avl

import (
	"fmt"
	"log/slog"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"github.com/bluesky-social/merkle-avl/lrucache"
)

// TreeContext holds everything needed to interpret a tree's nodes. Trees derived from each other share one context.
type TreeContext[K, V any] struct {
	KeyWriter   Writer[K]
	ValueWriter Writer[V]
	NewHasher   HashFactory
	Compare     func(a, b K) int

	// nil for purely in-memory trees
	Store *NodeStore[K, V]

	Logger *slog.Logger
}

type Options struct {
	NewHasher HashFactory

	// number of decoded nodes cached in front of the store. zero disables the cache
	CacheSize   int
	CachePolicy lrucache.Policy

	Logger *slog.Logger
}

func DefaultOptions() *Options {
	return &Options{
		NewHasher:   SHA256,
		CacheSize:   10_000,
		CachePolicy: lrucache.PolicyLRU,
		Logger:      slog.Default(),
	}
}

// NewContext builds a context whose node store is backed by kv. If kv is nil the context has no store, and trees built on it can never be committed.
func NewContext[K, V any](keys Marshaller[K], values Marshaller[V], cmp func(a, b K) int, kv kvstore.KVStore, opts *Options) (*TreeContext[K, V], error) {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		cp := *opts
		opts = &cp
	}
	if opts.NewHasher == nil {
		opts.NewHasher = SHA256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("system", "avl")

	tc := &TreeContext[K, V]{
		KeyWriter:   keys,
		ValueWriter: values,
		NewHasher:   opts.NewHasher,
		Compare:     cmp,
		Logger:      log,
	}

	if kv != nil {
		var cache *lrucache.Cache[string, *Node[K, V]]
		if opts.CacheSize > 0 {
			c, err := lrucache.New[string, *Node[K, V]]("avl_nodes", opts.CacheSize, opts.CachePolicy)
			if err != nil {
				return nil, fmt.Errorf("node cache: %w", err)
			}
			cache = c
		}
		tc.Store = NewNodeStore(kv, keys, values, cache, log)
	}
	return tc, nil
}

// hashNode computes the content hash of n. Both children must already be hashed.
func (tc *TreeContext[K, V]) hashNode(n *Node[K, V]) ([]byte, error) {
	kb, err := tc.KeyWriter.Marshal(n.data.Key)
	if err != nil {
		return nil, fmt.Errorf("marshalling key: %w: %w", ErrEncoding, err)
	}
	vb, err := tc.ValueWriter.Marshal(n.data.Value)
	if err != nil {
		return nil, fmt.Errorf("marshalling value: %w: %w", ErrEncoding, err)
	}
	lh, err := childHash(n.left)
	if err != nil {
		return nil, err
	}
	rh, err := childHash(n.right)
	if err != nil {
		return nil, err
	}

	h := tc.NewHasher()
	h.Write(kb)
	h.Write(vb)
	h.Write(lh)
	h.Write(rh)
	return h.Sum(nil), nil
}

func childHash[K, V any](ref NodeRef[K, V]) ([]byte, error) {
	if ref.IsEmpty() {
		return nil, nil
	}
	h := ref.Hash()
	if h == nil {
		return nil, fmt.Errorf("%w: child node has not been hashed", ErrInvariantViolation)
	}
	return h, nil
}

func (tc *TreeContext[K, V]) logger() *slog.Logger {
	if tc.Logger == nil {
		return slog.Default().With("system", "avl")
	}
	return tc.Logger
}
