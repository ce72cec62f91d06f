package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Tunevault/model"

	"github.com/go-redis/redis/v8"
)

// LibraryCache 缓存每个用户的曲库列表，任何写操作后失效
type LibraryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLibraryCache 创建曲库缓存
func NewLibraryCache(rdb *redis.Client, ttl time.Duration) *LibraryCache {
	return &LibraryCache{rdb: rdb, ttl: ttl}
}

// GetLibraryKey 根据用户ID生成曲库的Redis键
func GetLibraryKey(userID string) string {
	return "library:" + userID
}

// Get 读取缓存，未命中时第二个返回值为 false
func (c *LibraryCache) Get(ctx context.Context, userID string) ([]*model.MusicFile, bool, error) {
	data, err := c.rdb.Get(ctx, GetLibraryKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get library cache: %w", err)
	}

	var files []*model.MusicFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal library cache: %w", err)
	}
	return files, true, nil
}

// Set 写入缓存
func (c *LibraryCache) Set(ctx context.Context, userID string, files []*model.MusicFile) error {
	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal library: %w", err)
	}
	if err := c.rdb.Set(ctx, GetLibraryKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set library cache: %w", err)
	}
	return nil
}

// Invalidate 删除用户的曲库缓存
func (c *LibraryCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, GetLibraryKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate library cache: %w", err)
	}
	return nil
}
