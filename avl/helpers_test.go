package avl

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"github.com/stretchr/testify/require"
)

type intTree = Tree[uint64, string]

func memContext(t *testing.T) *TreeContext[uint64, string] {
	tc, err := NewContext[uint64, string](Uint64Marshaller{}, StringMarshaller{}, cmp.Compare[uint64], nil, nil)
	require.NoError(t, err)
	return tc
}

func storeContext(t *testing.T, kv kvstore.KVStore, cacheSize int) *TreeContext[uint64, string] {
	opts := DefaultOptions()
	opts.CacheSize = cacheSize
	tc, err := NewContext[uint64, string](Uint64Marshaller{}, StringMarshaller{}, cmp.Compare[uint64], kv, opts)
	require.NoError(t, err)
	return tc
}

func stringContext(t *testing.T, kv kvstore.KVStore) *TreeContext[string, []byte] {
	tc, err := NewContext[string, []byte](StringMarshaller{}, BytesMarshaller{}, strings.Compare, kv, nil)
	require.NoError(t, err)
	return tc
}

func buildTree(t *testing.T, tc *TreeContext[uint64, string], keys ...uint64) *intTree {
	ctx := context.Background()
	tree := NewTree(tc)
	for _, k := range keys {
		var err error
		tree, err = tree.With(ctx, k, valueFor(k))
		require.NoError(t, err)
	}
	return tree
}

func valueFor(k uint64) string {
	return strings.Repeat("v", int(k%7)+1)
}

func collectKeys[K, V any](t *testing.T, tree *Tree[K, V], start, end *K, reverse bool) []K {
	var out []K
	err := tree.Iterate(context.Background(), start, end, reverse, func(key K, value V) error {
		out = append(out, key)
		return nil
	})
	require.NoError(t, err)
	return out
}

// countingKV counts node record writes. It deliberately does not implement kvstore.Batcher, so commits write through Set.
type countingKV struct {
	kvstore.KVStore

	lk         sync.Mutex
	nodeWrites int
}

func (c *countingKV) Set(ctx context.Context, key, value []byte) error {
	if len(key) > 0 && key[0] == nodePrefix {
		c.lk.Lock()
		c.nodeWrites++
		c.lk.Unlock()
	}
	return c.KVStore.Set(ctx, key, value)
}

func (c *countingKV) writes() int {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.nodeWrites
}

var errBrokenDisk = errors.New("disk on fire")

// failingKV returns errBrokenDisk for reads once broken is set.
type failingKV struct {
	kvstore.KVStore
	broken bool
}

func (f *failingKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	if f.broken {
		return nil, errBrokenDisk
	}
	return f.KVStore.Get(ctx, key)
}

func (f *failingKV) Has(ctx context.Context, key []byte) (bool, error) {
	if f.broken {
		return false, errBrokenDisk
	}
	return f.KVStore.Has(ctx, key)
}

func nodeRecordBytes(t *testing.T, rec nodeRecord) []byte {
	buf := new(bytes.Buffer)
	require.NoError(t, rec.MarshalCBOR(buf))
	return buf.Bytes()
}
