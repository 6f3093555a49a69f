// Package profile caches the signed-in user's display attributes so that
// screens can render them without a round trip to the user store.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Roles stored on user documents.
const (
	RoleTuition = "tuition"
	RoleStudent = "student"
)

// ErrNotFound is returned when nothing is cached for the user.
var ErrNotFound = errors.New("profile not cached")

// LocalProfile is the cached copy of a user's display attributes.
type LocalProfile struct {
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// DisplayLabel renders a role the way the app shows it.
func DisplayLabel(role string) string {
	if role == RoleTuition {
		return "Tuition Teacher"
	}
	return "Student"
}

// Avatar returns the emoji shown next to the user's name.
func Avatar(role string) string {
	if role == RoleTuition {
		return "👨‍🏫"
	}
	return "👩‍🎓"
}

// Cache persists one LocalProfile per user under a fixed key.
type Cache interface {
	Write(ctx context.Context, userID string, p LocalProfile) error
	Read(ctx context.Context, userID string) (LocalProfile, error)
	Clear(ctx context.Context, userID string) error
}

func key(prefix, userID string) string {
	return prefix + ":" + userID
}

// RedisCache stores profiles as JSON strings in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache builds a cache writing keys "<prefix>:<userID>".
// A zero ttl keeps entries until Clear.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "userData"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Write(ctx context.Context, userID string, p LocalProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(c.prefix, userID), data, c.ttl).Err()
}

func (c *RedisCache) Read(ctx context.Context, userID string) (LocalProfile, error) {
	raw, err := c.client.Get(ctx, key(c.prefix, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LocalProfile{}, ErrNotFound
		}
		return LocalProfile{}, err
	}
	var p LocalProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return LocalProfile{}, fmt.Errorf("decode cached profile: %w", err)
	}
	return p, nil
}

func (c *RedisCache) Clear(ctx context.Context, userID string) error {
	return c.client.Del(ctx, key(c.prefix, userID)).Err()
}

// MemoryCache keeps serialized profiles in process memory.
type MemoryCache struct {
	prefix string
	mu     sync.RWMutex
	data   map[string][]byte
}

func NewMemoryCache(prefix string) *MemoryCache {
	if prefix == "" {
		prefix = "userData"
	}
	return &MemoryCache{prefix: prefix, data: make(map[string][]byte)}
}

func (c *MemoryCache) Write(_ context.Context, userID string, p LocalProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key(c.prefix, userID)] = data
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Read(_ context.Context, userID string) (LocalProfile, error) {
	c.mu.RLock()
	raw, ok := c.data[key(c.prefix, userID)]
	c.mu.RUnlock()
	if !ok {
		return LocalProfile{}, ErrNotFound
	}
	var p LocalProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return LocalProfile{}, fmt.Errorf("decode cached profile: %w", err)
	}
	return p, nil
}

func (c *MemoryCache) Clear(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.data, key(c.prefix, userID))
	c.mu.Unlock()
	return nil
}
