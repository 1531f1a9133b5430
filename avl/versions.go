package avl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VersionKey returns the store key under which the root hash of a numbered version is kept.
func VersionKey(version uint64) []byte {
	k := make([]byte, 1, 9)
	k[0] = versionPrefix
	return binary.BigEndian.AppendUint64(k, version)
}

func parseVersionKey(k []byte) (uint64, error) {
	if len(k) != 9 || k[0] != versionPrefix {
		return 0, fmt.Errorf("%w: malformed version key %x", ErrEncoding, k)
	}
	return binary.BigEndian.Uint64(k[1:]), nil
}

func writeVersion(ctx context.Context, w kvstore.Writer, version uint64, rootHash []byte) error {
	if err := w.Set(ctx, VersionKey(version), rootHash); err != nil {
		return fmt.Errorf("saving version %d: %w: %w", version, ErrStorage, err)
	}
	return nil
}

// SaveVersion records rootHash as the root of the given version. The tree itself must already be committed. An empty hash records the empty tree.
func SaveVersion(ctx context.Context, kv kvstore.Writer, version uint64, rootHash []byte) error {
	return writeVersion(ctx, kv, version, rootHash)
}

// GetVersion returns the root hash recorded for version, or ErrVersionNotFound.
func GetVersion(ctx context.Context, kv kvstore.Reader, version uint64) ([]byte, error) {
	root, err := kv.Get(ctx, VersionKey(version))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("version %d: %w", version, ErrVersionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading version %d: %w: %w", version, ErrStorage, err)
	}
	return root, nil
}

func DeleteVersion(ctx context.Context, kv kvstore.Writer, version uint64) error {
	if err := kv.Delete(ctx, VersionKey(version)); err != nil {
		return fmt.Errorf("deleting version %d: %w: %w", version, ErrStorage, err)
	}
	return nil
}

// ListVersions calls fn for every recorded version in ascending order, or descending with reverse. Return ErrStop from fn to end early. fn may read from kv, so it can load the version it is handed.
func ListVersions(ctx context.Context, kv kvstore.KVStore, reverse bool, fn func(version uint64, rootHash []byte) error) error {
	prefix := []byte{versionPrefix}
	// errors from inside the callback are returned as is, anything else came from the backend
	var inner error
	err := kv.Iterate(ctx, prefix, kvstore.PrefixEnd(prefix), reverse, func(key, value []byte) error {
		v, err := parseVersionKey(key)
		if err == nil {
			err = fn(v, append([]byte(nil), value...))
		}
		inner = err
		return err
	})
	if err == nil || errors.Is(err, ErrStop) {
		return nil
	}
	if err == inner {
		return err
	}
	return fmt.Errorf("listing versions: %w: %w", ErrStorage, err)
}

// LatestVersion returns the highest recorded version and its root hash, or ErrVersionNotFound if there are none.
func LatestVersion(ctx context.Context, kv kvstore.KVStore) (uint64, []byte, error) {
	var (
		found   bool
		version uint64
		root    []byte
	)
	err := ListVersions(ctx, kv, true, func(v uint64, rootHash []byte) error {
		found = true
		version = v
		root = rootHash
		return ErrStop
	})
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, fmt.Errorf("latest version: %w", ErrVersionNotFound)
	}
	return version, root, nil
}

// LoadVersion opens the tree recorded as the given version in the context's store.
func LoadVersion[K, V any](ctx context.Context, tc *TreeContext[K, V], version uint64) (*Tree[K, V], error) {
	ctx, span := tracer.Start(ctx, "LoadVersion", trace.WithAttributes(attribute.Int64("version", int64(version))))
	defer span.End()

	if tc.Store == nil {
		return nil, fmt.Errorf("loading version %d: %w", version, ErrMissingStore)
	}
	root, err := GetVersion(ctx, tc.Store.KV(), version)
	if err != nil {
		return nil, err
	}
	return LoadTree(ctx, tc, root)
}
