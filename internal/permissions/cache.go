package permissions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CheckCache memoizes check results in Redis. Keys embed a per-principal
// version counter, so invalidation is a single INCR instead of a key scan.
// Concurrent identical checks are deduplicated with singleflight.
type CheckCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCheckCache constructs a cache with the given TTL.
func NewCheckCache(client *redis.Client, ttl time.Duration) *CheckCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CheckCache{client: client, ttl: ttl}
}

// Do returns the cached result for key, computing and storing it on a miss.
// Redis failures degrade to a direct computation; a check never errors out
// because the cache is unreachable.
func (c *CheckCache) Do(ctx context.Context, userID uuid.UUID, key string, fn func(context.Context) (bool, error)) (bool, error) {
	if c == nil || c.client == nil {
		return fn(ctx)
	}
	versioned := c.versionedKey(ctx, userID, key)
	if val, err := c.client.Get(ctx, versioned).Result(); err == nil {
		return val == "1", nil
	}
	result, err, _ := c.group.Do(versioned, func() (any, error) {
		ok, err := fn(ctx)
		if err != nil {
			return false, err
		}
		stored := "0"
		if ok {
			stored = "1"
		}
		c.client.Set(ctx, versioned, stored, c.ttl)
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Invalidate discards every cached result for the principal.
func (c *CheckCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Incr(ctx, versionKey(userID))
}

func (c *CheckCache) versionedKey(ctx context.Context, userID uuid.UUID, key string) string {
	version, err := c.client.Get(ctx, versionKey(userID)).Result()
	if err != nil {
		version = "0"
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("perm:check:%s:%s:%s", userID, version, hex.EncodeToString(sum[:16]))
}

func versionKey(userID uuid.UUID) string {
	return "perm:ver:" + userID.String()
}

// checkKey builds a stable cache key for one check invocation.
func checkKey(kind string, userID uuid.UUID, scope string, acts []string, role string, checkCtx map[string]any) string {
	sortedActs := append([]string(nil), acts...)
	sort.Strings(sortedActs)
	ctxKeys := make([]string, 0, len(checkCtx))
	for key := range checkCtx {
		ctxKeys = append(ctxKeys, key)
	}
	sort.Strings(ctxKeys)
	var b strings.Builder
	b.WriteString(kind)
	b.WriteString("|")
	b.WriteString(userID.String())
	b.WriteString("|")
	b.WriteString(scope)
	b.WriteString("|")
	b.WriteString(strings.Join(sortedActs, ""))
	b.WriteString("|")
	b.WriteString(role)
	for _, key := range ctxKeys {
		fmt.Fprintf(&b, "|%s=%v", key, checkCtx[key])
	}
	return b.String()
}
