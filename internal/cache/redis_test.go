package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGetHitAndMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedis(client)
	defer c.Close()
	ctx := context.Background()

	mock.ExpectGet("waxpeer:page0").SetVal("payload")
	got, ok := c.Get(ctx, "waxpeer:page0")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	mock.ExpectGet("absent").RedisNil()
	_, ok = c.Get(ctx, "absent")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSetAndInvalidate(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedis(client)
	defer c.Close()
	ctx := context.Background()

	mock.ExpectSet("k", []byte("v"), time.Minute).SetVal("OK")
	c.Set(ctx, "k", []byte("v"), time.Minute)

	mock.ExpectDel("k").SetVal(1)
	c.Invalidate(ctx, "k")

	assert.NoError(t, mock.ExpectationsWereMet())
}
