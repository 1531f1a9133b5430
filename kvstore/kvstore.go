// Package kvstore defines the ordered, byte-keyed storage contract consumed by
// the tree engine, along with a few backends.
//
// Keys and values are opaque byte strings; backends must return exactly the
// bytes they were given, since content addressing in the layers above depends
// on byte equality. Keys are ordered by bytes.Compare.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for keys which are not present.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrStop may be returned from an iteration callback to end the iteration early. It is not returned to the caller.
var ErrStop = errors.New("kvstore: stop iteration")

// ErrClosed is returned by operations on a closed store or an already committed batch.
var ErrClosed = errors.New("kvstore: closed")

type Reader interface {
	// Returns a copy of the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Has(ctx context.Context, key []byte) (bool, error)
}

type Writer interface {
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
}

// IterFunc receives each key/value pair in order. The slices are only valid for the duration of the call.
type IterFunc func(key, value []byte) error

type KVStore interface {
	Reader
	Writer

	// Iterate visits every key in [start, end), in ascending order (or descending if reverse is set). A nil bound is open.
	Iterate(ctx context.Context, start, end []byte, reverse bool, fn IterFunc) error

	Close() error
}

// Batch buffers writes until Commit applies them atomically. A batch must be either committed or discarded.
type Batch interface {
	Writer
	Commit(ctx context.Context) error
	Discard()
}

// Batcher is implemented by stores which support atomic write batches.
type Batcher interface {
	NewBatch(ctx context.Context) (Batch, error)
}

// PrefixEnd returns the smallest key which sorts after every key with the given prefix, or nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func inRange(key, start, end []byte, compare func(a, b []byte) int) bool {
	if start != nil && compare(key, start) < 0 {
		return false
	}
	if end != nil && compare(key, end) >= 0 {
		return false
	}
	return true
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
