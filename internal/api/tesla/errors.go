package tesla

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrStateExpired       = errors.New("oauth state expired")
)

// ConfigError 缺少必需的 OAuth 配置
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tesla oauth misconfigured: %s is required", e.Field)
}

// ProviderError Tesla 返回的非 2xx 响应
type ProviderError struct {
	Op     string
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed: status=%d body=%s", e.Op, e.Status, e.Body)
}
