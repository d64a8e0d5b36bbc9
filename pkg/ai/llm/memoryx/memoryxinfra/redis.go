package memoryxinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/redis/go-redis/v9"
)

// RedisLog stores each conversation as one JSON value under conversation:<key>
type RedisLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLog creates a redis backed log. A zero ttl keeps entries forever.
func NewRedisLog(client *redis.Client, ttl time.Duration) *RedisLog {
	return &RedisLog{
		client: client,
		ttl:    ttl,
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("conversation:%s", key)
}

func (l *RedisLog) Load(ctx context.Context, key string) ([]memoryx.Turn, error) {
	data, err := l.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history from Redis: %w", err)
	}

	var turns []memoryx.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return turns, nil
}

func (l *RedisLog) Save(ctx context.Context, key string, turns []memoryx.Turn) error {
	if turns == nil {
		turns = []memoryx.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := l.client.Set(ctx, redisKey(key), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store history in Redis: %w", err)
	}
	return nil
}

func (l *RedisLog) Delete(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete history from Redis: %w", err)
	}
	return nil
}
