package kvstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
)

// datastore keys are paths, so binary keys are hex encoded under this namespace. lowercase hex preserves byte order.
const dsNamespace = "/kv"

// DatastoreStore adapts any go-datastore implementation to the KVStore contract.
type DatastoreStore struct {
	ds datastore.Datastore
}

var _ KVStore = (*DatastoreStore)(nil)
var _ Batcher = (*DatastoreStore)(nil)

func NewDatastoreStore(ds datastore.Datastore) *DatastoreStore {
	return &DatastoreStore{ds: ds}
}

func dsKey(key []byte) datastore.Key {
	// the "x" keeps empty keys as children of the namespace
	return datastore.NewKey(dsNamespace + "/x" + hex.EncodeToString(key))
}

func parseDsKey(k string) ([]byte, error) {
	prefix := dsNamespace + "/x"
	if !strings.HasPrefix(k, prefix) {
		return nil, fmt.Errorf("unexpected datastore key: %s", k)
	}
	return hex.DecodeString(k[len(prefix):])
}

func (d *DatastoreStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := d.ds.Get(ctx, dsKey(key))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return copyBytes(v), nil
}

func (d *DatastoreStore) Has(ctx context.Context, key []byte) (bool, error) {
	return d.ds.Has(ctx, dsKey(key))
}

func (d *DatastoreStore) Set(ctx context.Context, key, value []byte) error {
	return d.ds.Put(ctx, dsKey(key), copyBytes(value))
}

func (d *DatastoreStore) Delete(ctx context.Context, key []byte) error {
	return d.ds.Delete(ctx, dsKey(key))
}

func (d *DatastoreStore) Iterate(ctx context.Context, start, end []byte, reverse bool, fn IterFunc) error {
	q := query.Query{
		Prefix: dsNamespace,
		Orders: []query.Order{query.OrderByKey{}},
	}
	if reverse {
		q.Orders = []query.Order{query.OrderByKeyDescending{}}
	}
	results, err := d.ds.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("datastore query: %w", err)
	}
	defer results.Close()

	for r := range results.Next() {
		if r.Error != nil {
			return fmt.Errorf("datastore query: %w", r.Error)
		}
		key, err := parseDsKey(r.Key)
		if err != nil {
			return err
		}
		if !inRange(key, start, end, bytes.Compare) {
			// results are ordered, so once past the far bound there is nothing more to visit
			if (!reverse && end != nil && bytes.Compare(key, end) >= 0) ||
				(reverse && start != nil && bytes.Compare(key, start) < 0) {
				return nil
			}
			continue
		}
		if err := fn(key, r.Value); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
	return nil
}

func (d *DatastoreStore) Close() error {
	return d.ds.Close()
}

type dsBatch struct {
	batch datastore.Batch
	done  bool
}

// NewBatch uses the datastore's native batching if it has any, and otherwise falls back to a buffered batch.
func (d *DatastoreStore) NewBatch(ctx context.Context) (Batch, error) {
	if bds, ok := d.ds.(datastore.Batching); ok {
		b, err := bds.Batch(ctx)
		if err != nil {
			return nil, err
		}
		return &dsBatch{batch: b}, nil
	}
	return &dsBatch{batch: datastore.NewBasicBatch(d.ds)}, nil
}

func (b *dsBatch) Set(ctx context.Context, key, value []byte) error {
	if b.done {
		return ErrClosed
	}
	return b.batch.Put(ctx, dsKey(key), copyBytes(value))
}

func (b *dsBatch) Delete(ctx context.Context, key []byte) error {
	if b.done {
		return ErrClosed
	}
	return b.batch.Delete(ctx, dsKey(key))
}

func (b *dsBatch) Commit(ctx context.Context) error {
	if b.done {
		return ErrClosed
	}
	b.done = true
	return b.batch.Commit(ctx)
}

// Discard drops the batch. go-datastore batches have no rollback; an uncommitted batch is simply never applied.
func (b *dsBatch) Discard() {
	b.done = true
}
