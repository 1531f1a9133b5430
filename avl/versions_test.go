package avl

import (
	"context"
	"testing"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitVersions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	kv := kvstore.NewMemStore()
	tc := storeContext(t, kv, 100)

	_, _, err := LatestVersion(ctx, kv)
	assert.ErrorIs(err, ErrVersionNotFound)

	// version 1 is the empty tree
	tree, root1, err := NewTree(tc).CommitVersion(ctx, 1)
	require.NoError(t, err)
	assert.Empty(root1)

	var roots [][]byte
	roots = append(roots, root1)
	for v := uint64(2); v <= 5; v++ {
		tree, err = tree.With(ctx, v*10, valueFor(v))
		require.NoError(t, err)
		var root []byte
		tree, root, err = tree.CommitVersion(ctx, v)
		require.NoError(t, err)
		roots = append(roots, root)
	}

	latest, root, err := LatestVersion(ctx, kv)
	assert.NoError(err)
	assert.Equal(uint64(5), latest)
	assert.Equal(roots[4], root)

	var listed []uint64
	assert.NoError(ListVersions(ctx, kv, false, func(v uint64, rootHash []byte) error {
		listed = append(listed, v)
		assert.Equal(roots[v-1], rootHash)
		return nil
	}))
	assert.Equal([]uint64{1, 2, 3, 4, 5}, listed)

	empty, err := LoadVersion(ctx, tc, 1)
	assert.NoError(err)
	assert.True(empty.IsEmpty())

	v3, err := LoadVersion(ctx, storeContext(t, kv, 0), 3)
	assert.NoError(err)
	assert.Equal([]uint64{20, 30}, collectKeys(t, v3, nil, nil, false))
	assert.NoError(v3.Verify(ctx))

	_, err = LoadVersion(ctx, tc, 9)
	assert.ErrorIs(err, ErrVersionNotFound)

	assert.NoError(DeleteVersion(ctx, kv, 5))
	latest, _, err = LatestVersion(ctx, kv)
	assert.NoError(err)
	assert.Equal(uint64(4), latest)

	// deleting a version pointer leaves the nodes behind
	_, err = LoadTree(ctx, tc, roots[4])
	assert.NoError(err)
}

func TestSaveVersion(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	kv := kvstore.NewMemStore()
	tc := storeContext(t, kv, 0)

	_, root, err := buildTree(t, tc, 3, 1, 2).Commit(ctx)
	require.NoError(t, err)
	assert.NoError(SaveVersion(ctx, kv, 1<<40, root))

	got, err := GetVersion(ctx, kv, 1<<40)
	assert.NoError(err)
	assert.Equal(root, got)

	_, err = GetVersion(ctx, kv, 7)
	assert.ErrorIs(err, ErrVersionNotFound)

	assert.Equal([]byte{0x01, 0, 0, 1, 0, 0, 0, 0, 0}, VersionKey(1<<40))
	v, err := parseVersionKey(VersionKey(12345))
	assert.NoError(err)
	assert.Equal(uint64(12345), v)
	_, err = parseVersionKey([]byte{0x01, 2})
	assert.ErrorIs(err, ErrEncoding)

	_, err = LoadVersion(ctx, memContext(t), 1)
	assert.ErrorIs(err, ErrMissingStore)
}
