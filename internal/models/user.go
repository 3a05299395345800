package models

import "time"

// 用户角色
const (
	RoleDriver = "driver"
	RoleHost   = "host"
	RoleBoth   = "both"
)

// User 用户
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	Role         string    `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsHost 是否可以发布车位
func (u *User) IsHost() bool {
	return u.Role == RoleHost || u.Role == RoleBoth
}

// TeslaToken 用户绑定的 Tesla 令牌
type TeslaToken struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	Scope        string    `json:"scope" db:"scope"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Expired 令牌是否已过期
func (t *TeslaToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
