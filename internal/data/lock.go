package data

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// 锁的自动过期时间，防止进程崩溃后锁永远不释放。
// analyze / optimize 最多三次外部大模型往返，5 分钟足够覆盖。
const lockTTL = 5 * time.Minute

// RedisSessionLocker 基于 Redis SETNX 的会话级互斥锁。
// 同一个会话同时只允许一个 analyze / optimize 在跑，
// 避免 read-modify-persist 交错导致的 last-writer-wins。
type RedisSessionLocker struct {
	rdb *redis.Client
}

func NewRedisSessionLocker(d *Data) *RedisSessionLocker {
	return &RedisSessionLocker{rdb: d.Redis}
}

// TryLock 尝试获取锁。
// 返回值: (释放函数, 是否拿到锁)。
// Redis 不可用时降级为不加锁继续执行 (记录日志)，此时行为退回 last-writer-wins。
func (l *RedisSessionLocker) TryLock(ctx context.Context, sessionID string) (func(), bool) {
	key := "lock:session:" + sessionID

	ok, err := l.rdb.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		log.Printf("⚠️ 会话锁不可用，降级为无锁执行: %v", err)
		return func() {}, true
	}
	if !ok {
		return nil, false
	}

	release := func() {
		// 用独立 context，请求被取消也要把锁还回去
		if err := l.rdb.Del(context.Background(), key).Err(); err != nil {
			log.Printf("⚠️ 释放会话锁失败 (等待 TTL 过期): %v", err)
		}
	}
	return release, true
}
