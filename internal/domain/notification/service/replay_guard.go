package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard 记录已处理过的签名，First 在第一次见到 key 时返回 true
// 处理失败时 Release，让客户端的重试可以再次被处理
type ReplayGuard interface {
	First(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func replayKey(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return "webhook:replay:" + hex.EncodeToString(sum[:])
}

type redisReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReplayGuard 多实例部署时共享去重状态
func NewRedisReplayGuard(client *redis.Client, ttl time.Duration) ReplayGuard {
	return &redisReplayGuard{client: client, ttl: ttl}
}

func (g *redisReplayGuard) First(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, replayKey(key), 1, g.ttl).Result()
}

func (g *redisReplayGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, replayKey(key)).Err()
}

type memoryReplayGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemoryReplayGuard 单实例时使用
func NewMemoryReplayGuard(ttl time.Duration) ReplayGuard {
	return &memoryReplayGuard{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (g *memoryReplayGuard) First(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	k := replayKey(key)
	if exp, ok := g.seen[k]; ok && now.Before(exp) {
		return false, nil
	}
	if len(g.seen) > 10000 {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
	}
	g.seen[k] = now.Add(g.ttl)
	return true, nil
}

func (g *memoryReplayGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.seen, replayKey(key))
	g.mu.Unlock()
	return nil
}
