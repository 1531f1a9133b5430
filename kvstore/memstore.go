package kvstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
)

type memItem struct {
	key   []byte
	value []byte
}

func memItemLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemStore is an ordered in-memory KVStore, mostly useful for tests and for trees which never outlive the process.
type MemStore struct {
	lk     sync.RWMutex
	tree   *btree.BTreeG[memItem]
	closed bool
}

var _ KVStore = (*MemStore)(nil)
var _ Batcher = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		tree: btree.NewG(32, memItemLess),
	}
}

func (ms *MemStore) Get(_ context.Context, key []byte) ([]byte, error) {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	if ms.closed {
		return nil, ErrClosed
	}
	it, ok := ms.tree.Get(memItem{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(it.value), nil
}

func (ms *MemStore) Has(_ context.Context, key []byte) (bool, error) {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	if ms.closed {
		return false, ErrClosed
	}
	return ms.tree.Has(memItem{key: key}), nil
}

func (ms *MemStore) Set(_ context.Context, key, value []byte) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	if ms.closed {
		return ErrClosed
	}
	ms.tree.ReplaceOrInsert(memItem{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (ms *MemStore) Delete(_ context.Context, key []byte) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	if ms.closed {
		return ErrClosed
	}
	ms.tree.Delete(memItem{key: key})
	return nil
}

// Len returns the number of keys in the store.
func (ms *MemStore) Len() int {
	ms.lk.RLock()
	defer ms.lk.RUnlock()
	return ms.tree.Len()
}

// Iterate walks a copy-on-write snapshot of the store, so the callback may write to the store without deadlocking.
func (ms *MemStore) Iterate(ctx context.Context, start, end []byte, reverse bool, fn IterFunc) error {
	ms.lk.Lock()
	if ms.closed {
		ms.lk.Unlock()
		return ErrClosed
	}
	snap := ms.tree.Clone()
	ms.lk.Unlock()

	var items []memItem
	collect := func(it memItem) bool {
		items = append(items, it)
		return true
	}
	switch {
	case start != nil && end != nil:
		snap.AscendRange(memItem{key: start}, memItem{key: end}, collect)
	case start != nil:
		snap.AscendGreaterOrEqual(memItem{key: start}, collect)
	case end != nil:
		snap.AscendLessThan(memItem{key: end}, collect)
	default:
		snap.Ascend(collect)
	}

	for i := range items {
		it := items[i]
		if reverse {
			it = items[len(items)-1-i]
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.key, it.value); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
	return nil
}

func (ms *MemStore) Close() error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	ms.closed = true
	return nil
}

type memOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	ms   *MemStore
	ops  []memOp
	done bool
}

func (ms *MemStore) NewBatch(_ context.Context) (Batch, error) {
	return &memBatch{ms: ms}, nil
}

func (b *memBatch) Set(_ context.Context, key, value []byte) error {
	if b.done {
		return ErrClosed
	}
	b.ops = append(b.ops, memOp{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (b *memBatch) Delete(_ context.Context, key []byte) error {
	if b.done {
		return ErrClosed
	}
	b.ops = append(b.ops, memOp{key: copyBytes(key), delete: true})
	return nil
}

func (b *memBatch) Commit(_ context.Context) error {
	if b.done {
		return ErrClosed
	}
	b.done = true

	b.ms.lk.Lock()
	defer b.ms.lk.Unlock()
	if b.ms.closed {
		return ErrClosed
	}
	for _, op := range b.ops {
		if op.delete {
			b.ms.tree.Delete(memItem{key: op.key})
		} else {
			b.ms.tree.ReplaceOrInsert(memItem{key: op.key, value: op.value})
		}
	}
	b.ops = nil
	return nil
}

func (b *memBatch) Discard() {
	b.done = true
	b.ops = nil
}
