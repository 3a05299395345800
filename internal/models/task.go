package models

import (
	"encoding/json"
	"time"
)

// 副作用任务类型
const (
	TaskNavigation   = "navigation"
	TaskNotification = "notification"
)

// 任务状态
const (
	TaskPending = "pending"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// Task 预订副作用任务（outbox）
type Task struct {
	ID            int64           `json:"id" db:"id"`
	BookingID     int64           `json:"booking_id" db:"booking_id"`
	Kind          string          `json:"kind" db:"kind"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	Status        string          `json:"status" db:"status"`
	Attempts      int             `json:"attempts" db:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at" db:"next_attempt_at"`
	LastError     *string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// NavigationPayload 导航推送参数
type NavigationPayload struct {
	UserID    int64   `json:"user_id"`
	TeslaID   int64   `json:"tesla_id"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NotificationPayload 通知参数
type NotificationPayload struct {
	Event     string  `json:"event"`
	UserID    int64   `json:"user_id"`
	Reference string  `json:"booking_reference"`
	Message   string  `json:"message"`
	Amount    float64 `json:"amount,omitempty"`
}
