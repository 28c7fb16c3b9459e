package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	opts, err := Options("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = Options(" redis://:s3cret@cache:6380/2 ")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "s3cret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = Options("")
	assert.Error(t, err)
	_, err = Options("redis://cache:6379/not-a-db")
	assert.Error(t, err)
}

func TestInitRedis_Connects(t *testing.T) {
	t.Cleanup(func() { SetClient(nil) })

	mr := miniredis.RunT(t)
	require.NoError(t, InitRedis(context.Background(), mr.Addr()))
	require.NotNil(t, GetClient())
	require.NoError(t, GetClient().Set(context.Background(), "k", "v", 0).Err())

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestInitRedis_UnreachableLeavesClientNil(t *testing.T) {
	t.Cleanup(func() { SetClient(nil) })

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, InitRedis(ctx, addr))
	assert.Nil(t, GetClient())
}

func TestInitRedis_BadURL(t *testing.T) {
	t.Cleanup(func() { SetClient(nil) })
	SetClient(nil)

	assert.Error(t, InitRedis(context.Background(), "redis://cache:6379/not-a-db"))
	assert.Nil(t, GetClient())
}
