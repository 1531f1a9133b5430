package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is a KVStore backed by a pebble LSM database.
type PebbleStore struct {
	db  *pebble.DB
	log *slog.Logger

	// if true, writes are fsync'd before returning
	sync bool
}

var _ KVStore = (*PebbleStore)(nil)
var _ Batcher = (*PebbleStore)(nil)

// OpenPebble opens (or creates) a pebble database at path. opts may be nil.
func OpenPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: could not open db, %w", path, err)
	}
	return NewPebbleStore(db), nil
}

// NewPebbleStore wraps an already open database. The store takes ownership of db and closes it on Close.
func NewPebbleStore(db *pebble.DB) *PebbleStore {
	return &PebbleStore{
		db:   db,
		log:  slog.Default().With("system", "kvstore", "backend", "pebble"),
		sync: true,
	}
}

// SetSync controls whether writes wait for the WAL to be synced.
func (ps *PebbleStore) SetSync(sync bool) {
	ps.sync = sync
}

func (ps *PebbleStore) writeOpts() *pebble.WriteOptions {
	if ps.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (ps *PebbleStore) Get(_ context.Context, key []byte) ([]byte, error) {
	v, closer, err := ps.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := copyBytes(v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ps *PebbleStore) Has(ctx context.Context, key []byte) (bool, error) {
	_, err := ps.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (ps *PebbleStore) Set(_ context.Context, key, value []byte) error {
	return ps.db.Set(key, value, ps.writeOpts())
}

func (ps *PebbleStore) Delete(_ context.Context, key []byte) error {
	return ps.db.Delete(key, ps.writeOpts())
}

func (ps *PebbleStore) Iterate(ctx context.Context, start, end []byte, reverse bool, fn IterFunc) error {
	iter, err := ps.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return fmt.Errorf("pebble iter start, %w", err)
	}

	step := iter.Next
	valid := iter.First()
	if reverse {
		step = iter.Prev
		valid = iter.Last()
	}
	for ; valid; valid = step() {
		if err := ctx.Err(); err != nil {
			iter.Close()
			return err
		}
		value, err := iter.ValueAndErr()
		if err != nil {
			iter.Close()
			return fmt.Errorf("pebble iter, %w", err)
		}
		if err := fn(iter.Key(), value); err != nil {
			iter.Close()
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
	return iter.Close()
}

func (ps *PebbleStore) Close() error {
	if err := ps.db.Flush(); err != nil {
		ps.log.Error("pebble flush", "err", err)
	}
	err := ps.db.Close()
	if err != nil {
		ps.log.Error("pebble close", "err", err)
	}
	return err
}

type pebbleBatch struct {
	ps    *PebbleStore
	batch *pebble.Batch
	done  bool
}

func (ps *PebbleStore) NewBatch(_ context.Context) (Batch, error) {
	return &pebbleBatch{ps: ps, batch: ps.db.NewBatch()}, nil
}

func (b *pebbleBatch) Set(_ context.Context, key, value []byte) error {
	if b.done {
		return ErrClosed
	}
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(_ context.Context, key []byte) error {
	if b.done {
		return ErrClosed
	}
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Commit(_ context.Context) error {
	if b.done {
		return ErrClosed
	}
	b.done = true
	err := b.batch.Commit(b.ps.writeOpts())
	if cerr := b.batch.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *pebbleBatch) Discard() {
	if b.done {
		return
	}
	b.done = true
	if err := b.batch.Close(); err != nil {
		b.ps.log.Warn("discarding pebble batch", "err", err)
	}
}
