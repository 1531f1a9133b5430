package avl

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/bluesky-social/merkle-avl/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStoreRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	kv := kvstore.NewMemStore()
	tc := storeContext(t, kv, 0)

	left := bytes.Repeat([]byte{0xaa}, 32)
	right := bytes.Repeat([]byte{0xbb}, 32)
	n := &Node[uint64, string]{
		data:  &NodeData[uint64, string]{Key: 77, Value: "seventy seven", Height: 4, Rank: 9},
		left:  HashRef[uint64, string](left),
		right: HashRef[uint64, string](right),
	}
	hash := bytes.Repeat([]byte{0x01}, 32)

	ok, err := tc.Store.Has(ctx, hash)
	assert.NoError(err)
	assert.False(ok)
	missing, err := tc.Store.Get(ctx, hash)
	assert.NoError(err)
	assert.Nil(missing)

	require.NoError(t, tc.Store.Set(ctx, hash, n))
	ok, err = tc.Store.Has(ctx, hash)
	assert.NoError(err)
	assert.True(ok)

	raw, err := kv.Get(ctx, append([]byte{0x00}, hash...))
	assert.NoError(err)
	assert.NotEmpty(raw)

	got, err := tc.Store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(uint64(77), got.Key())
	assert.Equal("seventy seven", got.Value())
	assert.Equal(uint32(4), got.Height())
	assert.Equal(uint64(9), got.Rank())
	assert.Equal(left, got.Left().Hash())
	assert.Equal(right, got.Right().Hash())
	assert.Equal(RefHash, got.Left().Kind())
	assert.Equal(hash, got.Hash())

	// leaf records decode to empty refs
	leaf := &Node[uint64, string]{data: &NodeData[uint64, string]{Key: 1, Value: "", Height: 1, Rank: 1}}
	require.NoError(t, tc.Store.Set(ctx, left, leaf))
	got, err = tc.Store.Get(ctx, left)
	require.NoError(t, err)
	assert.True(got.Left().IsEmpty())
	assert.True(got.Right().IsEmpty())
	assert.Equal("", got.Value())

	require.NoError(t, tc.Store.Delete(ctx, hash))
	missing, err = tc.Store.Get(ctx, hash)
	assert.NoError(err)
	assert.Nil(missing)
}

func TestNodeStoreCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	kv := kvstore.NewMemStore()
	tc := storeContext(t, kv, 16)
	require.NotNil(t, tc.Store.cache)

	n := &Node[uint64, string]{data: &NodeData[uint64, string]{Key: 5, Value: "five", Height: 1, Rank: 1}}
	hash := []byte("0123456789abcdef0123456789abcdef")

	// writes do not populate the cache; only durable reads do
	require.NoError(t, tc.Store.Set(ctx, hash, n))
	assert.False(tc.Store.cache.Contains(string(hash)))

	first, err := tc.Store.Get(ctx, hash)
	require.NoError(t, err)
	assert.True(tc.Store.cache.Contains(string(hash)))
	second, err := tc.Store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Same(first, second)

	require.NoError(t, tc.Store.Delete(ctx, hash))
	assert.False(tc.Store.cache.Contains(string(hash)))
}

func TestEncodeRejectsUnhashedChild(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tc := storeContext(t, kvstore.NewMemStore(), 0)
	child := &Node[uint64, string]{data: &NodeData[uint64, string]{Key: 1, Value: "a", Height: 1, Rank: 1}}
	parent := &Node[uint64, string]{
		data: &NodeData[uint64, string]{Key: 2, Value: "b", Height: 2, Rank: 2},
		left: MemRef(child),
	}
	err := tc.Store.Set(ctx, []byte("parent"), parent)
	assert.ErrorIs(err, ErrInvariantViolation)
}

func TestNodeRecordEncoding(t *testing.T) {
	assert := assert.New(t)

	rec := nodeRecord{Key: []byte("k"), Value: []byte{}, Left: nil, Right: []byte{1, 2}, Height: 2, Rank: 3}
	b := nodeRecordBytes(t, rec)
	// array(6), bytes(1) "k", bytes(0), bytes(0), bytes(2) 01 02, uint 2, uint 3
	assert.Equal([]byte{0x86, 0x41, 'k', 0x40, 0x40, 0x42, 0x01, 0x02, 0x02, 0x03}, b)

	m := CBORMarshaller[nodeRecord, *nodeRecord]{}
	enc, err := m.Marshal(rec)
	assert.NoError(err)
	assert.Equal(b, enc)

	dec, err := m.Unmarshal(enc)
	assert.NoError(err)
	assert.Equal([]byte("k"), dec.Key)
	assert.Empty(dec.Value)
	assert.Empty(dec.Left)
	assert.Equal([]byte{1, 2}, dec.Right)
	assert.Equal(uint32(2), dec.Height)
	assert.Equal(uint64(3), dec.Rank)

	_, err = m.Unmarshal(append(enc, 0x00))
	assert.Error(err)
	_, err = m.Unmarshal([]byte{0x85})
	assert.Error(err)
}

func TestDecodeRejectsEmptyShape(t *testing.T) {
	ctx := context.Background()

	kv := kvstore.NewMemStore()
	tc := storeContext(t, kv, 0)
	key, err := Uint64Marshaller{}.Marshal(9)
	require.NoError(t, err)

	for _, rec := range []nodeRecord{
		{Key: key, Value: []byte("v"), Height: 0, Rank: 1},
		{Key: key, Value: []byte("v"), Height: 1, Rank: 0},
	} {
		hash := []byte(fmt.Sprintf("h%d-r%d", rec.Height, rec.Rank))
		require.NoError(t, kv.Set(ctx, NodeKey(hash), nodeRecordBytes(t, rec)))

		_, err := tc.Store.Get(ctx, hash)
		assert.ErrorIs(t, err, ErrEncoding)

		_, err = LoadTree(ctx, tc, hash)
		assert.ErrorIs(t, err, ErrEncoding)
	}
}

func TestMarshallers(t *testing.T) {
	assert := assert.New(t)

	b, err := Uint64Marshaller{}.Marshal(258)
	assert.NoError(err)
	assert.Equal([]byte{0, 0, 0, 0, 0, 0, 1, 2}, b)
	v, err := Uint64Marshaller{}.Unmarshal(b)
	assert.NoError(err)
	assert.Equal(uint64(258), v)
	_, err = Uint64Marshaller{}.Unmarshal([]byte{1})
	assert.Error(err)

	s, err := StringMarshaller{}.Unmarshal([]byte("hello"))
	assert.NoError(err)
	assert.Equal("hello", s)

	in := []byte{1, 2, 3}
	out, err := BytesMarshaller{}.Unmarshal(in)
	assert.NoError(err)
	in[0] = 9
	assert.Equal([]byte{1, 2, 3}, out)
}

func TestHasherByName(t *testing.T) {
	assert := assert.New(t)

	for _, name := range []string{"", "sha256", "blake2b"} {
		f, err := HasherByName(name)
		assert.NoError(err)
		assert.Equal(32, f().Size())
	}
	_, err := HasherByName("md5")
	assert.Error(err)
}

func TestNodeRefKinds(t *testing.T) {
	assert := assert.New(t)

	var zero NodeRef[uint64, string]
	assert.Equal(RefEmpty, zero.Kind())
	assert.True(zero.IsEmpty())
	assert.True(HashRef[uint64, string](nil).IsEmpty())
	assert.True(MemRef[uint64, string](nil).IsEmpty())
	assert.True(NoRef[uint64, string]().IsEmpty())

	h := HashRef[uint64, string]([]byte{1})
	assert.Equal(RefHash, h.Kind())
	assert.Nil(h.Node())
	assert.Equal([]byte{1}, h.Hash())

	n := &Node[uint64, string]{data: &NodeData[uint64, string]{Key: 1, Height: 1, Rank: 1}}
	m := MemRef(n)
	assert.Equal(RefMem, m.Kind())
	assert.Same(n, m.Node())
	assert.Nil(m.Hash())
	assert.Equal("MemRef", m.Kind().String())

	resolved, err := zero.Resolve(context.Background(), memContext(t))
	assert.NoError(err)
	assert.Nil(resolved)
}
