package redisledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/qrmenu/menu-relay/capability/redisledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ledger := redisledger.New(client)
	ctx := context.Background()

	ok, err := ledger.Consume(ctx, "jti-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.Consume(ctx, "jti-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	require.True(t, mr.Exists("capability:consumed:jti-1"))
	require.Greater(t, mr.TTL("capability:consumed:jti-1"), time.Duration(0))

	t.Run("marker expires with the capability", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		require.False(t, mr.Exists("capability:consumed:jti-1"))
	})

	t.Run("redis down", func(t *testing.T) {
		down, err := miniredis.Run()
		require.NoError(t, err)
		c := redis.NewClient(&redis.Options{Addr: down.Addr(), MaxRetries: -1})
		t.Cleanup(func() { _ = c.Close() })
		down.Close()

		_, err = redisledger.New(c).Consume(ctx, "jti-2", time.Now().Add(time.Minute))
		require.Error(t, err)
	})
}
