package variables

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(map[string]string{"HOME": "/root"})

	v, ok, err := s.Get(ctx, "HOME")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/root", v)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, _ = s.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, _ = s.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisConfig{Addr: server.Addr()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, ok, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "x", "1"))
	v, ok, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	assert.Equal(t, "1", server.HGet("scriptetl:properties", "x"))
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
