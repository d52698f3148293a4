package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayGuard_Claim(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	guard := NewReplayGuard(redisCache, 10*time.Minute)
	ctx := testContext(t)

	sig := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

	first, err := guard.Claim(ctx, sig)
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 10*time.Minute, mr.TTL("sig:"+sig))

	again, err := guard.Claim(ctx, sig)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := guard.Claim(ctx, sig+"x")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestReplayGuard_ExpiresWithWindow(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	guard := NewReplayGuard(redisCache, time.Minute)
	ctx := testContext(t)

	ok, err := guard.Claim(ctx, "sig-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = guard.Claim(ctx, "sig-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplayGuard_RedisDown(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	guard := NewReplayGuard(redisCache, time.Minute)
	mr.Close()

	ok, err := guard.Claim(testContext(t), "sig-a")
	assert.Error(t, err)
	assert.False(t, ok)
}
