package assignments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// assignmentKeyPrefix Redis key 前缀
const assignmentKeyPrefix = "dispatch:assignments:"

// redisStore Redis 实现的派单方案存储
type redisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 派单方案存储
func NewRedisStore(redisAddr, redisPassword string) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisStore{client: client}, nil
}

// NewRedisStoreWithClient 复用已有连接（供进程内共享同一 Redis 客户端）
func NewRedisStoreWithClient(client *redis.Client) Store {
	return &redisStore{client: client}
}

// assignmentKey 生成存储 key
func assignmentKey(riderID, date string) string {
	return fmt.Sprintf("%s%s:%s", assignmentKeyPrefix, riderID, date)
}

// Get 读取方案。键不存在或值损坏都按空方案处理：
// 损坏的存量数据不应让整个派单页面不可用。
func (s *redisStore) Get(ctx context.Context, riderID, date string) ([]string, error) {
	data, err := s.client.Get(ctx, assignmentKey(riderID, date)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var orderIDs []string
	if err := json.Unmarshal(data, &orderIDs); err != nil {
		log.Warn().Err(err).
			Str("rider_id", riderID).
			Str("date", date).
			Msg("corrupt assignment payload, treating as empty")
		return []string{}, nil
	}
	if orderIDs == nil {
		orderIDs = []string{}
	}
	return orderIDs, nil
}

// Save 整体覆盖方案
func (s *redisStore) Save(ctx context.Context, riderID, date string, orderIDs []string) error {
	data, err := json.Marshal(dedupe(orderIDs))
	if err != nil {
		return fmt.Errorf("marshal assignment failed: %w", err)
	}

	if err := s.client.Set(ctx, assignmentKey(riderID, date), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Clear 删除方案
func (s *redisStore) Clear(ctx context.Context, riderID, date string) error {
	if err := s.client.Del(ctx, assignmentKey(riderID, date)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
