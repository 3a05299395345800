package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/models"
)

// Notifier 预订通知发送
type Notifier interface {
	Notify(ctx context.Context, n models.NotificationPayload) error
}

// LogNotifier 未配置消息队列时只写日志
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, p models.NotificationPayload) error {
	n.logger.Info("Booking notification",
		zap.String("event", p.Event),
		zap.Int64("user_id", p.UserID),
		zap.String("booking_reference", p.Reference),
		zap.String("message", p.Message),
	)
	return nil
}
