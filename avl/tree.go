package avl

import (
	"context"
	"fmt"
	"time"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("avl")

// Map is the read side of a tree.
type Map[K, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Has(ctx context.Context, key K) (bool, error)
}

// PersistentMap is a Map whose updates return new versions, leaving the receiver unchanged.
type PersistentMap[K, V any] interface {
	Map[K, V]
	With(ctx context.Context, key K, value V) (*Tree[K, V], error)
	Without(ctx context.Context, key K) (*Tree[K, V], error)
}

var _ PersistentMap[string, []byte] = (*Tree[string, []byte])(nil)

// Tree is one immutable version of the map. All methods are safe for concurrent use.
type Tree[K, V any] struct {
	tc   *TreeContext[K, V]
	root NodeRef[K, V]
}

func NewTree[K, V any](tc *TreeContext[K, V]) *Tree[K, V] {
	return &Tree[K, V]{tc: tc}
}

// NewTreeFromRoot wraps an existing root reference.
func NewTreeFromRoot[K, V any](tc *TreeContext[K, V], root NodeRef[K, V]) *Tree[K, V] {
	return &Tree[K, V]{tc: tc, root: root}
}

// LoadTree opens the committed tree with the given root hash. An empty hash is the empty tree. The root record must exist; the rest of the tree is loaded lazily.
func LoadTree[K, V any](ctx context.Context, tc *TreeContext[K, V], rootHash []byte) (*Tree[K, V], error) {
	root := HashRef[K, V](rootHash)
	if root.IsEmpty() {
		return NewTree(tc), nil
	}
	if _, err := root.Resolve(ctx, tc); err != nil {
		return nil, err
	}
	return &Tree[K, V]{tc: tc, root: root}, nil
}

func (t *Tree[K, V]) Context() *TreeContext[K, V] {
	return t.tc
}

func (t *Tree[K, V]) RootRef() NodeRef[K, V] {
	return t.root
}

func (t *Tree[K, V]) IsEmpty() bool {
	return t.root.IsEmpty()
}

// Get returns the value stored under key. The boolean is false if the key is absent.
func (t *Tree[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	n, err := t.tc.findNode(ctx, t.root, key)
	if err != nil || n == nil {
		return zero, false, err
	}
	return n.data.Value, true, nil
}

func (t *Tree[K, V]) Has(ctx context.Context, key K) (bool, error) {
	n, err := t.tc.findNode(ctx, t.root, key)
	if err != nil {
		return false, err
	}
	return n != nil, nil
}

// With returns a new tree with key set to value. Nothing is persisted until Commit.
func (t *Tree[K, V]) With(ctx context.Context, key K, value V) (*Tree[K, V], error) {
	st, err := t.tc.insert(ctx, t.root, key, value)
	if err != nil {
		return nil, err
	}
	return &Tree[K, V]{tc: t.tc, root: st.ref}, nil
}

// Without returns a new tree with key removed. If key is absent the receiver is returned.
func (t *Tree[K, V]) Without(ctx context.Context, key K) (*Tree[K, V], error) {
	st, removed, err := t.tc.remove(ctx, t.root, key)
	if err != nil {
		return nil, err
	}
	if !removed {
		return t, nil
	}
	return &Tree[K, V]{tc: t.tc, root: st.ref}, nil
}

// Len returns the number of keys in the tree.
func (t *Tree[K, V]) Len(ctx context.Context) (uint64, error) {
	n, err := t.root.Resolve(ctx, t.tc)
	if err != nil {
		return 0, err
	}
	return rankOf(n), nil
}

func (t *Tree[K, V]) Height(ctx context.Context) (uint32, error) {
	n, err := t.root.Resolve(ctx, t.tc)
	if err != nil {
		return 0, err
	}
	return heightOf(n), nil
}

// Hash computes content hashes for every unhashed node without writing anything. It returns the hashed version of the tree (with the same content) and its root hash, which is nil for the empty tree.
func (t *Tree[K, V]) Hash(ctx context.Context) (*Tree[K, V], []byte, error) {
	root, changed, err := t.root.calcHashSerialize(ctx, t.tc, nil, false)
	if err != nil {
		return nil, nil, err
	}
	if !changed {
		return t, t.root.Hash(), nil
	}
	return &Tree[K, V]{tc: t.tc, root: root}, root.Hash(), nil
}

// Commit hashes the tree and writes every node record the store does not already have. The returned tree's root is a HashRef.
func (t *Tree[K, V]) Commit(ctx context.Context) (*Tree[K, V], []byte, error) {
	return t.commit(ctx, nil)
}

// CommitVersion is Commit plus recording the root hash as the given version, in the same write batch.
func (t *Tree[K, V]) CommitVersion(ctx context.Context, version uint64) (*Tree[K, V], []byte, error) {
	return t.commit(ctx, &version)
}

func (t *Tree[K, V]) commit(ctx context.Context, version *uint64) (*Tree[K, V], []byte, error) {
	ctx, span := tracer.Start(ctx, "Commit")
	defer span.End()

	store := t.tc.Store
	if store == nil {
		return nil, nil, fmt.Errorf("commit: %w", ErrMissingStore)
	}
	start := time.Now()

	var w kvstore.Writer = store.kv
	var batch kvstore.Batch
	if b, ok := store.kv.(kvstore.Batcher); ok {
		nb, err := b.NewBatch(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("commit: starting batch: %w: %w", ErrStorage, err)
		}
		batch = nb
		w = batch
	}

	fail := func(err error) (*Tree[K, V], []byte, error) {
		if batch != nil {
			batch.Discard()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	sink := newCommitSink(store, w)
	root, _, err := t.root.calcHashSerialize(ctx, t.tc, sink, true)
	if err != nil {
		return fail(err)
	}
	rootHash := root.Hash()

	if version != nil {
		if err := writeVersion(ctx, w, *version, rootHash); err != nil {
			return fail(err)
		}
	}
	if batch != nil {
		if err := batch.Commit(ctx); err != nil {
			return fail(fmt.Errorf("commit: %w: %w", ErrStorage, err))
		}
	}
	for _, n := range sink.pending {
		store.remember(n)
	}

	written := sink.written()
	nodesWritten.Add(float64(written))
	commitDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("written", written))

	log := t.tc.logger().With("root", fmt.Sprintf("%x", rootHash), "written", written, "duration", time.Since(start))
	if version != nil {
		log = log.With("version", *version)
	}
	log.Info("committed tree")

	return &Tree[K, V]{tc: t.tc, root: root}, rootHash, nil
}
