package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/models"
)

const (
	// ArrivalWindow 开始时间前后在该窗口内的预订参与到达检测
	ArrivalWindow = time.Hour
	// NavigationLeadTime 开始前多久补发导航
	NavigationLeadTime = 2 * time.Hour
)

// ArrivalBookings 到达检测需要的预订操作
type ArrivalBookings interface {
	AwaitingArrival(ctx context.Context, window time.Duration) ([]*models.BookingDetail, error)
	DetectArrival(ctx context.Context, bd *models.BookingDetail, lat, lng float64) (bool, error)
	FindUpcoming(ctx context.Context, within time.Duration) ([]*models.BookingDetail, error)
	MarkNavigationSent(ctx context.Context, bookingID int64) error
}

// VehicleLocator 查询车辆位置
type VehicleLocator interface {
	VehicleLocation(ctx context.Context, userID, teslaID int64) (lat, lng float64, err error)
}

// ArrivalMonitor 定时读取车辆位置检测到达，并为即将开始的预订补发导航
type ArrivalMonitor struct {
	logger    *zap.Logger
	interval  time.Duration
	bookings  ArrivalBookings
	locator   VehicleLocator
	navigator Navigator

	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	navTried map[int64]bool
}

// NewArrivalMonitor 创建到达检测
func NewArrivalMonitor(logger *zap.Logger, interval time.Duration, bookings ArrivalBookings, locator VehicleLocator, navigator Navigator) *ArrivalMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ArrivalMonitor{
		logger:    logger,
		interval:  interval,
		bookings:  bookings,
		locator:   locator,
		navigator: navigator,
		navTried:  make(map[int64]bool),
	}
}

// Start 启动轮询
func (m *ArrivalMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
	m.logger.Info("Arrival monitor started", zap.Duration("interval", m.interval))
}

// Stop 停止轮询
func (m *ArrivalMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Arrival monitor stopped")
}

func (m *ArrivalMonitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll 执行一轮检测，返回检测到到达的预订数
func (m *ArrivalMonitor) Poll(ctx context.Context) int {
	m.remindNavigation(ctx)

	pending, err := m.bookings.AwaitingArrival(ctx, ArrivalWindow)
	if err != nil {
		m.logger.Error("Failed to list bookings awaiting arrival", zap.Error(err))
		return 0
	}

	arrived := 0
	for _, bd := range pending {
		if bd.TeslaID == nil {
			continue
		}

		lat, lng, err := m.locator.VehicleLocation(ctx, bd.DriverID, *bd.TeslaID)
		if err != nil {
			// 车辆休眠或未绑定，下一轮再试
			m.logger.Debug("Vehicle location unavailable", zap.Int64("booking_id", bd.ID), zap.Error(err))
			continue
		}

		ok, err := m.bookings.DetectArrival(ctx, bd, lat, lng)
		if err != nil {
			m.logger.Warn("Failed to mark arrival", zap.Int64("booking_id", bd.ID), zap.Error(err))
			continue
		}
		if ok {
			arrived++
			m.logger.Info("Vehicle arrived at driveway", zap.Int64("booking_id", bd.ID), zap.String("reference", bd.Reference))
		}
	}
	return arrived
}

// remindNavigation 即将开始但导航未送达的预订，每个只补发一次
func (m *ArrivalMonitor) remindNavigation(ctx context.Context) {
	if m.navigator == nil {
		return
	}

	upcoming, err := m.bookings.FindUpcoming(ctx, NavigationLeadTime)
	if err != nil {
		m.logger.Error("Failed to find upcoming bookings", zap.Error(err))
		return
	}

	// 只保留仍在窗口内的预订，已开始或已推送的移出
	current := make(map[int64]bool, len(upcoming))
	for _, bd := range upcoming {
		current[bd.ID] = true
	}
	for id := range m.navTried {
		if !current[id] {
			delete(m.navTried, id)
		}
	}

	for _, bd := range upcoming {
		if bd.TeslaID == nil || m.navTried[bd.ID] {
			continue
		}
		m.navTried[bd.ID] = true

		err := m.navigator.ShareNavigation(ctx, models.NavigationPayload{
			UserID:    bd.DriverID,
			TeslaID:   *bd.TeslaID,
			Address:   bd.DrivewayAddress,
			Latitude:  bd.Latitude,
			Longitude: bd.Longitude,
		})
		if err != nil {
			m.logger.Warn("Navigation reminder failed", zap.Int64("booking_id", bd.ID), zap.Error(err))
			continue
		}
		if err := m.bookings.MarkNavigationSent(ctx, bd.ID); err != nil {
			m.logger.Warn("Failed to mark navigation sent", zap.Int64("booking_id", bd.ID), zap.Error(err))
		}
	}
}
