package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// OAuthState 第三方登录流程中与 state 绑定的数据
type OAuthState struct {
	Provider   string `json:"provider"`
	LinkUserID string `json:"linkUserId,omitempty"` // 非空表示绑定流程
}

// TokenStore 登录相关的短期数据：JWT 吊销、重置密码令牌、OAuth state
type TokenStore struct {
	rdb *redis.Client
}

// NewTokenStore 创建令牌存储
func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func revokedKey(jti string) string { return "auth:revoked:" + jti }
func resetKey(token string) string { return "auth:reset:" + token }
func stateKey(state string) string { return "auth:oauth:" + state }

// Revoke 吊销一个 JWT，保留到它原本的过期时间
func (s *TokenStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked 检查 JWT 是否已被吊销
func (s *TokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return n > 0, nil
}

// SaveResetToken 保存一次性重置密码令牌
func (s *TokenStore) SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, resetKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken 取出并删除重置令牌，不存在时返回空字符串
func (s *TokenStore) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, resetKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}

// SaveState 保存 OAuth state
func (s *TokenStore) SaveState(ctx context.Context, state string, data OAuthState, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal oauth state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(state), b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// ConsumeState 取出并删除 OAuth state，不存在时返回 nil
func (s *TokenStore) ConsumeState(ctx context.Context, state string) (*OAuthState, error) {
	b, err := s.rdb.GetDel(ctx, stateKey(state)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	var data OAuthState
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal oauth state: %w", err)
	}
	return &data, nil
}
