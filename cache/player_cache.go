package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// PlayerCache 保存每个用户播放器状态的快照，服务重启后可以恢复
type PlayerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPlayerCache 创建播放器快照缓存，ttl 通常为24小时
func NewPlayerCache(rdb *redis.Client, ttl time.Duration) *PlayerCache {
	return &PlayerCache{rdb: rdb, ttl: ttl}
}

// GetPlayerKey 根据用户ID生成播放器状态的Redis键
func GetPlayerKey(userID string) string {
	return "player:" + userID
}

// Save 以 JSON 形式保存快照并刷新过期时间
func (c *PlayerCache) Save(ctx context.Context, userID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal player snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, GetPlayerKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save player snapshot: %w", err)
	}
	return nil
}

// Load 读取快照到 dst，不存在时返回 false
func (c *PlayerCache) Load(ctx context.Context, userID string, dst interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, GetPlayerKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to load player snapshot: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal player snapshot: %w", err)
	}
	return true, nil
}

// Clear 删除快照
func (c *PlayerCache) Clear(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, GetPlayerKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear player snapshot: %w", err)
	}
	return nil
}
