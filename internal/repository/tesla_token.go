package repository

import (
	"context"
	"fmt"

	"github.com/langchou/drivewayhub/internal/models"
)

// TeslaTokenRepository Tesla 令牌仓库
type TeslaTokenRepository struct {
	db *DB
}

// NewTeslaTokenRepository 创建令牌仓库
func NewTeslaTokenRepository(db *DB) *TeslaTokenRepository {
	return &TeslaTokenRepository{db: db}
}

// Get 获取用户令牌，不存在时返回 ErrNotFound
func (r *TeslaTokenRepository) Get(ctx context.Context, userID int64) (*models.TeslaToken, error) {
	t := &models.TeslaToken{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT user_id, access_token, refresh_token, expires_at, scope, updated_at
		FROM tesla_tokens WHERE user_id = $1
	`, userID).Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.Scope, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get tesla token: %w", notFound(err))
	}
	return t, nil
}

// Save 写入或覆盖令牌
func (r *TeslaTokenRepository) Save(ctx context.Context, t *models.TeslaToken) error {
	query := `
		INSERT INTO tesla_tokens (user_id, access_token, refresh_token, expires_at, scope)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			updated_at = NOW()
		RETURNING updated_at
	`
	if err := r.db.Pool.QueryRow(ctx, query, t.UserID, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.Scope).Scan(&t.UpdatedAt); err != nil {
		return fmt.Errorf("save tesla token: %w", err)
	}
	return nil
}

// Delete 解除绑定
func (r *TeslaTokenRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM tesla_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete tesla token: %w", err)
	}
	return nil
}
