package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/notify"
)

const (
	// MaxTaskAttempts 单个任务最多执行次数
	MaxTaskAttempts = 5

	taskBatchSize   = 20
	taskBackoffBase = 30 * time.Second
	taskBackoffMax  = 30 * time.Minute
)

// errPermanent 不再重试的失败
var errPermanent = errors.New("permanent failure")

// TaskQueue 副作用任务队列
type TaskQueue interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Task, error)
	MarkDone(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id int64, lastErr string) error
}

// Navigator 导航推送
type Navigator interface {
	ShareNavigation(ctx context.Context, nav models.NavigationPayload) error
}

// NavigationMarker 记录导航已推送
type NavigationMarker interface {
	MarkNavigationSent(ctx context.Context, bookingID int64) error
}

// Dispatcher 轮询任务表，执行导航推送与通知，失败按指数退避重试
type Dispatcher struct {
	logger    *zap.Logger
	interval  time.Duration
	queue     TaskQueue
	navigator Navigator
	notifier  notify.Notifier
	marker    NavigationMarker
	now       func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewDispatcher 创建调度器，navigator 为 nil 时导航任务直接失败
func NewDispatcher(
	logger *zap.Logger,
	interval time.Duration,
	queue TaskQueue,
	navigator Navigator,
	notifier notify.Notifier,
	marker NavigationMarker,
) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		logger:    logger,
		interval:  interval,
		queue:     queue,
		navigator: navigator,
		notifier:  notifier,
		marker:    marker,
		now:       time.Now,
	}
}

// Start 启动轮询
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.stopCh = make(chan struct{})
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info("Task dispatcher started", zap.Duration("interval", d.interval))
}

// Stop 停止并等待当前批次结束
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Task dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.Error("Failed to process tasks", zap.Error(err))
			}
		}
	}
}

// RunOnce 处理一批到期任务，返回处理数量
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	tasks, err := d.queue.ListDue(ctx, d.now(), taskBatchSize)
	if err != nil {
		return 0, err
	}

	for _, t := range tasks {
		d.process(ctx, t)
	}
	return len(tasks), nil
}

func (d *Dispatcher) process(ctx context.Context, t *models.Task) {
	err := d.execute(ctx, t)
	if err == nil {
		if err := d.queue.MarkDone(ctx, t.ID); err != nil {
			d.logger.Error("Failed to mark task done", zap.Int64("task_id", t.ID), zap.Error(err))
		}
		return
	}

	attempts := t.Attempts + 1
	logger := d.logger.With(
		zap.Int64("task_id", t.ID),
		zap.Int64("booking_id", t.BookingID),
		zap.String("kind", t.Kind),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	if errors.Is(err, errPermanent) || errors.Is(err, ErrReauthRequired) || attempts >= MaxTaskAttempts {
		logger.Warn("Task failed permanently")
		if err := d.queue.MarkFailed(ctx, t.ID, err.Error()); err != nil {
			d.logger.Error("Failed to mark task failed", zap.Int64("task_id", t.ID), zap.Error(err))
		}
		return
	}

	next := d.now().Add(Backoff(attempts))
	logger.Info("Task failed, scheduled retry", zap.Time("next_attempt_at", next))
	if err := d.queue.MarkRetry(ctx, t.ID, next, err.Error()); err != nil {
		d.logger.Error("Failed to schedule task retry", zap.Int64("task_id", t.ID), zap.Error(err))
	}
}

func (d *Dispatcher) execute(ctx context.Context, t *models.Task) error {
	switch t.Kind {
	case models.TaskNavigation:
		var nav models.NavigationPayload
		if err := json.Unmarshal(t.Payload, &nav); err != nil {
			return fmt.Errorf("%w: decode navigation payload: %v", errPermanent, err)
		}
		if d.navigator == nil {
			return fmt.Errorf("%w: tesla integration disabled", errPermanent)
		}
		if err := d.navigator.ShareNavigation(ctx, nav); err != nil {
			return err
		}
		if d.marker != nil {
			if err := d.marker.MarkNavigationSent(ctx, t.BookingID); err != nil {
				d.logger.Warn("Failed to mark navigation sent", zap.Int64("booking_id", t.BookingID), zap.Error(err))
			}
		}
		d.logger.Info("Navigation sent to vehicle", zap.Int64("booking_id", t.BookingID), zap.Int64("tesla_id", nav.TeslaID))
		return nil

	case models.TaskNotification:
		var n models.NotificationPayload
		if err := json.Unmarshal(t.Payload, &n); err != nil {
			return fmt.Errorf("%w: decode notification payload: %v", errPermanent, err)
		}
		return d.notifier.Notify(ctx, n)
	}
	return fmt.Errorf("%w: unknown task kind %q", errPermanent, t.Kind)
}

// Backoff 第 n 次失败后的等待时间：30s, 60s, 120s ... 最多 30 分钟
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := taskBackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= taskBackoffMax {
			return taskBackoffMax
		}
	}
	return delay
}
