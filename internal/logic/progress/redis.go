package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProgressStore 管理 Redis 中的 slot 状态（高频判重）
type RedisProgressStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

const (
	defaultKeyPrefix = "flashswap:audit:slot"
	defaultTTL       = 3 * 24 * time.Hour
)

func NewRedisProgressStore(rdb *redis.Client) *RedisProgressStore {
	return &RedisProgressStore{rdb: rdb, prefix: defaultKeyPrefix, ttl: defaultTTL}
}

func (r *RedisProgressStore) key(slot uint64) string {
	return fmt.Sprintf("%s:%d", r.prefix, slot)
}

// GetSlotStatus 获取 slot 的状态，key 不存在时返回 SlotUnknown
func (r *RedisProgressStore) GetSlotStatus(ctx context.Context, slot uint64) (SlotStatus, error) {
	val, err := r.rdb.Get(ctx, r.key(slot)).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return SlotUnknown, nil
	case err != nil:
		return SlotUnknown, fmt.Errorf("redis get error: %w", err)
	}

	switch status := SlotStatus(val); status {
	case SlotProcessed, SlotInvalid, SlotPending, SlotMissing:
		return status, nil
	default:
		return SlotUnknown, nil
	}
}

func (r *RedisProgressStore) MarkSlotStatus(ctx context.Context, slot uint64, status SlotStatus) error {
	if err := r.rdb.Set(ctx, r.key(slot), int(status), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}
