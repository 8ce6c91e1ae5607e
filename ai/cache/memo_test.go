package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoImplementations(t *testing.T) {
	memos := map[string]Memo{
		"lru": NewLRUMemo(10, time.Minute),
		"map": NewMapMemo(),
	}

	for name, memo := range memos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok := memo.Get(ctx, "ru|en|кот")
			assert.False(t, ok)

			memo.Set(ctx, "ru|en|кот", "cat")
			got, ok := memo.Get(ctx, "ru|en|кот")
			require.True(t, ok)
			assert.Equal(t, "cat", got)
		})
	}
}

func TestLRUMemoIsBounded(t *testing.T) {
	ctx := context.Background()
	memo := NewLRUMemo(2, 0)

	memo.Set(ctx, "a", "1")
	memo.Set(ctx, "b", "2")
	memo.Set(ctx, "c", "3")

	_, ok := memo.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, memo.lru.Size())
}

func TestMapMemoNeverEvicts(t *testing.T) {
	ctx := context.Background()
	memo := NewMapMemo()
	for _, key := range []string{"a", "b", "c", "d"} {
		memo.Set(ctx, key, key)
	}
	assert.Equal(t, 4, memo.Len())
}

func TestRedisMemoUnavailableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	memo := NewRedisMemo(client, "picsave:test:", time.Minute)

	ctx := context.Background()
	memo.Set(ctx, "k", "v")
	_, ok := memo.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, memo.Ping(ctx))
}

func TestRedisMemo(t *testing.T) {
	addr := os.Getenv("PICSAVE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PICSAVE_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr)
	t.Cleanup(func() { _ = client.Close() })
	memo := NewRedisMemo(client, "picsave:test:", time.Minute)

	ctx := context.Background()
	require.NoError(t, memo.Ping(ctx))
	memo.Set(ctx, "ru|en|кот", "cat")
	got, ok := memo.Get(ctx, "ru|en|кот")
	require.True(t, ok)
	assert.Equal(t, "cat", got)
}
