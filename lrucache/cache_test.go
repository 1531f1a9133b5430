package lrucache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	for _, policy := range []Policy{PolicyLRU, PolicyARC} {
		t.Run(string(policy), func(t *testing.T) {
			assert := assert.New(t)

			c, err := New[string, int]("test-evict-"+string(policy), 2, policy)
			require.NoError(t, err)

			assert.False(c.Put("a", 1))
			assert.False(c.Put("b", 2))

			// touching a makes b the eviction candidate
			v, ok := c.Get("a")
			assert.True(ok)
			assert.Equal(1, v)

			assert.True(c.Put("c", 3))
			assert.Equal(2, c.Len())

			_, ok = c.Get("b")
			assert.False(ok)
			v, ok = c.Get("a")
			assert.True(ok)
			assert.Equal(1, v)
			v, ok = c.Get("c")
			assert.True(ok)
			assert.Equal(3, v)
		})
	}
}

func TestPutRefreshes(t *testing.T) {
	assert := assert.New(t)

	c, err := New[string, int]("test-refresh", 2, PolicyLRU)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	// replacing a value does not evict, and refreshes recency
	assert.False(c.Put("a", 10))
	assert.Equal([]string{"b", "a"}, c.Keys())

	c.Put("c", 3)
	assert.False(c.Contains("b"))
	v, ok := c.Get("a")
	assert.True(ok)
	assert.Equal(10, v)
}

func TestRemoveAndPurge(t *testing.T) {
	for _, policy := range []Policy{PolicyLRU, PolicyARC} {
		t.Run(string(policy), func(t *testing.T) {
			assert := assert.New(t)

			c, err := New[int, string]("test-remove-"+string(policy), 4, policy)
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				c.Put(i, fmt.Sprint(i))
			}
			assert.True(c.Remove(1))
			assert.False(c.Remove(1))
			assert.Equal(2, c.Len())
			assert.ElementsMatch([]int{0, 2}, c.Keys())

			c.Purge()
			assert.Equal(0, c.Len())
			_, ok := c.Get(0)
			assert.False(ok)
		})
	}
}

func TestBoundedCapacity(t *testing.T) {
	for _, policy := range []Policy{PolicyLRU, PolicyARC} {
		t.Run(string(policy), func(t *testing.T) {
			assert := assert.New(t)

			c, err := New[int, int]("test-bounded-"+string(policy), 8, policy)
			require.NoError(t, err)

			evictions := 0
			for i := 0; i < 100; i++ {
				if c.Put(i, i) {
					evictions++
				}
				assert.LessOrEqual(c.Len(), 8)
			}
			assert.Equal(8, c.Len())
			assert.Equal(92, evictions)
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	assert := assert.New(t)

	_, err := New[string, int]("bad-size", 0, PolicyLRU)
	assert.Error(err)

	_, err = New[string, int]("bad-policy", 4, Policy("fifo"))
	assert.Error(err)

	c, err := New[string, int]("default-policy", 4, "")
	assert.NoError(err)
	assert.Equal(PolicyLRU, c.Policy())
	assert.Equal(4, c.Cap())
	assert.Equal("default-policy", c.Name())
}

func TestParsePolicy(t *testing.T) {
	assert := assert.New(t)

	p, err := ParsePolicy("")
	assert.NoError(err)
	assert.Equal(PolicyLRU, p)

	p, err = ParsePolicy("arc")
	assert.NoError(err)
	assert.Equal(PolicyARC, p)

	_, err = ParsePolicy("random")
	assert.Error(err)
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New[int, int]("test-concurrent", 16, PolicyLRU)
	require.NoError(t, err)

	var eg errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		eg.Go(func() error {
			for i := 0; i < 200; i++ {
				k := (w*31 + i) % 40
				if v, ok := c.Get(k); ok && v != k {
					return fmt.Errorf("key %d: got %d", k, v)
				}
				c.Put(k, k)
			}
			return nil
		})
	}
	assert.NoError(t, eg.Wait())
	assert.LessOrEqual(t, c.Len(), 16)
}
