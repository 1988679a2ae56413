package resultcache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/resultcache"
)

func withCache(t *testing.T, action func(c *resultcache.Cache)) {
	db, err := miniredis.Run()
	require.NoError(t, err)
	defer db.Close()

	client := redis.NewClient(&redis.Options{Addr: db.Addr()})
	action(resultcache.New(client))
}

func TestGetMissingReturnsFalse(t *testing.T) {
	withCache(t, func(c *resultcache.Cache) {
		entries, ok, err := c.Get(context.Background(), "job-1")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, entries)
	})
}

func TestPutThenGetRoundTrips(t *testing.T) {
	withCache(t, func(c *resultcache.Cache) {
		ctx := context.Background()
		in := []resultcache.Entry{
			{Name: "logs", IsDir: true},
			{Name: "output.csv", Default: true},
			{Name: "stderr.log"},
		}
		require.NoError(t, c.Put(ctx, "job-1", in))

		out, ok, err := c.Get(ctx, "job-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, out, 3)
		require.Equal(t, "output.csv", out[0].Name) // default file sorted first
	})
}

func TestPutWithNoDefaultKeepsOriginalOrder(t *testing.T) {
	withCache(t, func(c *resultcache.Cache) {
		ctx := context.Background()
		in := []resultcache.Entry{{Name: "a"}, {Name: "b"}}
		require.NoError(t, c.Put(ctx, "job-2", in))

		out, ok, err := c.Get(ctx, "job-2")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []string{"a", "b"}, []string{out[0].Name, out[1].Name})
	})
}
