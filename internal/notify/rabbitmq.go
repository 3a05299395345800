package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/models"
)

const (
	// ExchangeName 通知交换机（topic）
	ExchangeName   = "drivewayhub.notifications"
	reconnInterval = 5 * time.Second
)

var ErrBrokerClosed = errors.New("amqp connection closed")

// RabbitMQ 通过 topic 交换机投递通知，路由键为 booking.<event>
type RabbitMQ struct {
	ctx          context.Context
	url          string
	logger       *zap.Logger
	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
}

// NewRabbitMQ 建立连接并声明交换机
func NewRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		ctx:    ctx,
		url:    url,
		logger: logger,
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

// Notify 发布通知
func (r *RabbitMQ) Notify(ctx context.Context, n models.NotificationPayload) error {
	return r.PublishJSON(ctx, "booking."+n.Event, n)
}

// PublishJSON 持久化投递 JSON 消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, routingKey string, msg any) error {
	if !r.IsAlive() {
		r.logger.Warn("AMQP connection not alive, scheduling reconnect")
		go r.reconnect(r.ctx)
		return ErrBrokerClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()

	return ch.PublishWithContext(pubCtx, ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// IsAlive 连接和通道是否可用
func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return false
	}
	if r.ch == nil || r.ch.IsClosed() {
		return false
	}
	return true
}

// Close 关闭通道和连接
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(reconnInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := r.connect(); err != nil {
				r.logger.Warn("AMQP reconnect failed", zap.Error(err))
				continue
			}
			r.logger.Info("AMQP reconnected")
			return
		case <-ctx.Done():
			return
		}
	}
}
