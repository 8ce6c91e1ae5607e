package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_Creation(t *testing.T) {
	testCases := []struct {
		name      string
		capacity  int
		expectCap int
	}{
		{"default capacity", 0, 1000},
		{"negative capacity", -5, 1000},
		{"custom capacity", 200, 200},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewLRUCache[string, string](tc.capacity, 0)
			assert.Equal(t, tc.expectCap, c.Capacity())
			assert.Equal(t, 0, c.Size())
		})
	}
}

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache[string, string](10, time.Minute)

	c.Set("кот", "cat")
	got, ok := c.Get("кот")
	require.True(t, ok)
	assert.Equal(t, "cat", got)

	_, ok = c.Get("собака")
	assert.False(t, ok)

	c.Set("кот", "kitty")
	got, _ = c.Get("кот")
	assert.Equal(t, "kitty", got)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[string, int](3, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
	assert.Equal(t, 3, c.Size())
	assert.Equal(t, uint64(1), c.Evictions())
}

func TestLRUCache_TTL(t *testing.T) {
	c := NewLRUCache[string, string](10, 0)

	c.SetWithTTL("short", "v", 10*time.Millisecond)
	c.Set("forever", "v")

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok, "expired entry should not be returned")
	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_Remove(t *testing.T) {
	c := NewLRUCache[int, string](10, 0)
	c.Set(1, "one")

	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache[string, int](50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%120)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 50)
}
