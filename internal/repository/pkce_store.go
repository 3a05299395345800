package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PKCEState 授权过程中暂存的 state 与 code_verifier
type PKCEState struct {
	UserID       int64     `json:"user_id"`
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// PKCEStore 基于 Redis 的 PKCE 存储，按用户 ID 保存
type PKCEStore struct {
	client redis.UniversalClient
	prefix string
}

// NewPKCEStore 创建 PKCE 存储
func NewPKCEStore(client redis.UniversalClient) *PKCEStore {
	return &PKCEStore{client: client, prefix: "drivewayhub:tesla:pkce:"}
}

func (s *PKCEStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", s.prefix, userID)
}

// Save 保存并设置过期时间，同一用户重复发起时覆盖
func (s *PKCEStore) Save(ctx context.Context, st PKCEState, ttl time.Duration) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal pkce state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(st.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist pkce state: %w", err)
	}
	return nil
}

// Get 读取，不存在时返回 nil, nil
func (s *PKCEStore) Get(ctx context.Context, userID int64) (*PKCEState, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load pkce state: %w", err)
	}

	var st PKCEState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode pkce state: %w", err)
	}
	return &st, nil
}

// Delete 删除（授权码只能使用一次）
func (s *PKCEStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete pkce state: %w", err)
	}
	return nil
}
