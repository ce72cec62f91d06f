package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Tunevault/model"

	"github.com/go-redis/redis/v8"
)

// RecommendCache 缓存 AI 推荐结果，键由调用方计算
type RecommendCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRecommendCache 创建推荐缓存
func NewRecommendCache(rdb *redis.Client, ttl time.Duration) *RecommendCache {
	return &RecommendCache{rdb: rdb, ttl: ttl}
}

func recommendKey(key string) string { return "recommend:" + key }

// Get 读取缓存的推荐
func (c *RecommendCache) Get(ctx context.Context, key string) ([]model.Recommendation, bool, error) {
	data, err := c.rdb.Get(ctx, recommendKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get recommendation cache: %w", err)
	}
	var recs []model.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal recommendation cache: %w", err)
	}
	return recs, true, nil
}

// Set 写入推荐
func (c *RecommendCache) Set(ctx context.Context, key string, recs []model.Recommendation) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	if err := c.rdb.Set(ctx, recommendKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set recommendation cache: %w", err)
	}
	return nil
}
