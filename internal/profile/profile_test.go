package profile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caches(t *testing.T) map[string]Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Cache{
		"memory": NewMemoryCache(""),
		"redis":  NewRedisCache(client, "userData", time.Hour),
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			in := LocalProfile{FullName: "A", Role: RoleStudent}
			require.NoError(t, c.Write(ctx, "u1", in))

			out, err := c.Read(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, in, out)
			assert.Equal(t, "Student", DisplayLabel(out.Role))

			require.NoError(t, c.Clear(ctx, "u1"))
			_, err = c.Read(ctx, "u1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCacheMissingKey(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Read(context.Background(), "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, c.Clear(context.Background(), "nobody"))
		})
	}
}

func TestRedisCacheLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, "", 0)
	require.NoError(t, c.Write(context.Background(), "u9", LocalProfile{FullName: "T", Role: RoleTuition}))

	raw, err := mr.Get("userData:u9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fullName":"T","role":"tuition"}`, raw)
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "Tuition Teacher", DisplayLabel(RoleTuition))
	assert.Equal(t, "Student", DisplayLabel(RoleStudent))
	assert.NotEqual(t, Avatar(RoleTuition), Avatar(RoleStudent))
}
