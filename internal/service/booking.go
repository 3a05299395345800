package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/geo"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/pricing"
	"github.com/langchou/drivewayhub/internal/repository"
	"github.com/langchou/drivewayhub/internal/state"
)

// SystemActor 系统触发的状态变更（到达检测、调度任务）
const SystemActor int64 = 0

const (
	// CancellationNotice 取消须提前的时间
	CancellationNotice = 24 * time.Hour
	// DepartureThresholdMeters 离开车位超过该距离视为驶离
	DepartureThresholdMeters = 200.0

	referencePrefix   = "DH-"
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceLength   = 6
	referenceAttempts = 3
)

// 实时推送消息类型
const (
	MsgTypeBookingCreated = "booking_created"
	MsgTypeBookingUpdated = "booking_updated"
)

// BookingStore 预订存储
type BookingStore interface {
	WithTx(ctx context.Context, fn func(tx repository.BookingTx) error) error
	GetByID(ctx context.Context, id int64) (*models.BookingDetail, error)
	ListByDriver(ctx context.Context, driverID int64, limit, offset int) ([]*models.BookingDetail, int64, error)
	ListByHost(ctx context.Context, hostID int64, limit, offset int) ([]*models.BookingDetail, int64, error)
	FindUpcoming(ctx context.Context, from, to time.Time) ([]*models.BookingDetail, error)
	ListAwaitingArrival(ctx context.Context, from, to time.Time) ([]*models.BookingDetail, error)
	MarkNavigationSent(ctx context.Context, id int64) error
	HostEarnings(ctx context.Context, hostID int64) (*models.HostEarnings, error)
}

// Broadcaster 实时消息推送（WebSocket Hub）
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// CreateBookingInput 创建预订参数
type CreateBookingInput struct {
	DriverID    int64
	VehicleID   int64
	DrivewayID  int64
	StartTime   time.Time
	EndTime     time.Time
	DriverNotes *string
}

// BookingPage 分页结果
type BookingPage struct {
	Bookings []*models.BookingDetail `json:"bookings"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	Limit    int                     `json:"limit"`
}

// LocationResult 位置上报结果
type LocationResult struct {
	Booking        *models.BookingDetail `json:"booking"`
	DistanceMeters float64               `json:"distance_meters"`
	Arrived        bool                  `json:"arrived"`
	Departed       bool                  `json:"departed"`
}

// BookingEvent 推送给前端的预订变更
type BookingEvent struct {
	BookingID int64  `json:"booking_id"`
	Reference string `json:"booking_reference"`
	Status    string `json:"status"`
	DriverID  int64  `json:"driver_id"`
	HostID    int64  `json:"host_id"`
}

// BookingService 预订服务
type BookingService struct {
	logger *zap.Logger
	store  BookingStore
	hub    Broadcaster
	now    func() time.Time
	newRef func() (string, error)
}

// NewBookingService 创建预订服务，hub 可以为 nil
func NewBookingService(logger *zap.Logger, store BookingStore, hub Broadcaster) *BookingService {
	return &BookingService{
		logger: logger,
		store:  store,
		hub:    hub,
		now:    time.Now,
		newRef: generateReference,
	}
}

// CreateBooking 校验并写入预订
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.BookingDetail, error) {
	now := s.now()

	// 时间校验不访问数据库
	if !in.EndTime.After(in.StartTime) {
		return nil, apperr.Validation(apperr.CodeInvalidTimeRange, "End time must be after start time")
	}
	if in.StartTime.Before(now) {
		return nil, apperr.Validation(apperr.CodeStartInPast, "Start time cannot be in the past")
	}

	var (
		detail *models.BookingDetail
		err    error
	)
	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		detail, err = s.createOnce(ctx, in, now)
		if err == nil {
			break
		}
		// 仅预订号碰撞时重试，业务错误直接返回
		if _, ok := apperr.As(err); ok || !apperr.IsUniqueViolation(err) {
			return nil, err
		}
		s.logger.Warn("Booking reference collision, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.logger.Info("Booking created",
		zap.Int64("booking_id", detail.ID),
		zap.String("reference", detail.Reference),
		zap.Int64("driveway_id", detail.DrivewayID),
		zap.Float64("total_amount", detail.TotalAmount),
	)
	s.publish(MsgTypeBookingCreated, detail)
	return detail, nil
}

func (s *BookingService) createOnce(ctx context.Context, in CreateBookingInput, now time.Time) (*models.BookingDetail, error) {
	ref, err := s.newRef()
	if err != nil {
		return nil, err
	}

	var detail *models.BookingDetail
	err = s.store.WithTx(ctx, func(tx repository.BookingTx) error {
		driveway, err := tx.LockDriveway(ctx, in.DrivewayID)
		if err != nil {
			return storeError(err, "Driveway not found")
		}
		if !driveway.Bookable() {
			return apperr.Business(apperr.CodeDrivewayNotAvailable, "Driveway is not available")
		}

		vehicle, err := tx.GetVehicle(ctx, in.VehicleID)
		if err != nil {
			return storeError(err, "Vehicle not found")
		}
		if vehicle.UserID != in.DriverID {
			return apperr.NotFound("Vehicle not found")
		}
		if !driveway.Fits(vehicle) {
			return apperr.Business(apperr.CodeVehicleTooLarge, "Vehicle is too large for this driveway").
				WithDetails(map[string]any{
					"vehicle_length": vehicle.Length,
					"vehicle_width":  vehicle.Width,
					"max_length":     driveway.MaxVehicleLength,
					"max_width":      driveway.MaxVehicleWidth,
				})
		}

		conflict, err := tx.HasConflict(ctx, driveway.ID, in.StartTime, in.EndTime)
		if err != nil {
			return err
		}
		if conflict {
			return apperr.Conflict(apperr.CodeBookingConflict, "Driveway is already booked for this time")
		}

		quote, err := pricing.Calculate(driveway.HourlyRate, in.StartTime, in.EndTime)
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidData, err.Error())
		}

		status, err := state.Next(models.BookingPending, state.EventConfirm)
		if err != nil {
			return err
		}

		b := &models.Booking{
			Reference:    ref,
			DriverID:     in.DriverID,
			VehicleID:    vehicle.ID,
			DrivewayID:   driveway.ID,
			StartTime:    in.StartTime,
			EndTime:      in.EndTime,
			TotalHours:   quote.TotalHours,
			HourlyRate:   quote.HourlyRate,
			Subtotal:     quote.Subtotal,
			PlatformFee:  quote.PlatformFee,
			TotalAmount:  quote.TotalAmount,
			HostEarnings: quote.HostEarnings,
			Status:       status,
			DriverNotes:  in.DriverNotes,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}

		detail = &models.BookingDetail{
			Booking:         *b,
			DrivewayTitle:   driveway.Title,
			DrivewayAddress: driveway.Address,
			HostID:          driveway.HostID,
			Latitude:        driveway.Latitude,
			Longitude:       driveway.Longitude,
			VehicleName:     vehicle.Label(),
			TeslaID:         vehicle.TeslaID,
		}

		if vehicle.TeslaID != nil {
			nav := models.NavigationPayload{
				UserID:    in.DriverID,
				TeslaID:   *vehicle.TeslaID,
				Address:   driveway.Address,
				Latitude:  driveway.Latitude,
				Longitude: driveway.Longitude,
			}
			if err := enqueue(ctx, tx, b.ID, models.TaskNavigation, nav, now); err != nil {
				return err
			}
		}

		notices := []models.NotificationPayload{
			{
				Event:     "confirmed",
				UserID:    in.DriverID,
				Reference: ref,
				Message:   fmt.Sprintf("Your booking at %s is confirmed", driveway.Title),
				Amount:    quote.TotalAmount,
			},
			{
				Event:     "received",
				UserID:    driveway.HostID,
				Reference: ref,
				Message:   fmt.Sprintf("New booking for %s", driveway.Title),
				Amount:    quote.HostEarnings,
			},
		}
		for _, n := range notices {
			if err := enqueue(ctx, tx, b.ID, models.TaskNotification, n, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// CancelBooking 取消预订，须在开始前 24 小时以上
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID int64, reason string) (*models.BookingDetail, error) {
	return s.transition(ctx, bookingID, state.EventCancel,
		func(bd *models.BookingDetail, now time.Time) error {
			if !isParticipant(bd, userID) {
				return apperr.Forbidden("Only the driver or the host can cancel this booking")
			}
			if _, err := nextStatus(bd.Status, state.EventCancel); err != nil {
				return err
			}
			if bd.StartTime.Sub(now) < CancellationNotice {
				return apperr.Business(apperr.CodeCancellationTooLate, "Bookings can only be cancelled at least 24 hours before start time")
			}
			return nil
		},
		func(c *repository.StatusChange, now time.Time) {
			c.CancelledAt = &now
			if reason != "" {
				c.Reason = &reason
			}
		},
		func(bd *models.BookingDetail) []models.NotificationPayload {
			return []models.NotificationPayload{
				{Event: "cancelled", UserID: bd.DriverID, Reference: bd.Reference, Message: "Your booking has been cancelled"},
				{Event: "cancelled", UserID: bd.HostID, Reference: bd.Reference, Message: fmt.Sprintf("Booking %s has been cancelled", bd.Reference)},
			}
		},
	)
}

// MarkArrival 标记到达，userID 为 SystemActor 时跳过权限检查
func (s *BookingService) MarkArrival(ctx context.Context, userID, bookingID int64) (*models.BookingDetail, error) {
	return s.transition(ctx, bookingID, state.EventArrive,
		func(bd *models.BookingDetail, _ time.Time) error {
			if userID != SystemActor && userID != bd.DriverID {
				return apperr.Forbidden("Only the driver can report arrival")
			}
			return nil
		},
		func(c *repository.StatusChange, now time.Time) {
			c.ArrivalAt = &now
		},
		func(bd *models.BookingDetail) []models.NotificationPayload {
			return []models.NotificationPayload{
				{Event: "arrived", UserID: bd.HostID, Reference: bd.Reference, Message: fmt.Sprintf("%s has arrived at %s", bd.VehicleName, bd.DrivewayTitle)},
			}
		},
	)
}

// MarkDeparture 标记驶离并完成预订
func (s *BookingService) MarkDeparture(ctx context.Context, userID, bookingID int64) (*models.BookingDetail, error) {
	return s.transition(ctx, bookingID, state.EventDepart,
		func(bd *models.BookingDetail, _ time.Time) error {
			if userID != SystemActor && userID != bd.DriverID {
				return apperr.Forbidden("Only the driver can report departure")
			}
			return nil
		},
		func(c *repository.StatusChange, now time.Time) {
			c.DepartureAt = &now
		},
		completedNotices,
	)
}

// CompleteBooking 司机或车主手动完成
func (s *BookingService) CompleteBooking(ctx context.Context, userID, bookingID int64) (*models.BookingDetail, error) {
	return s.transition(ctx, bookingID, state.EventComplete,
		func(bd *models.BookingDetail, _ time.Time) error {
			if !isParticipant(bd, userID) {
				return apperr.Forbidden("Only the driver or the host can complete this booking")
			}
			return nil
		},
		func(c *repository.StatusChange, now time.Time) {
			c.DepartureAt = &now
		},
		completedNotices,
	)
}

// MarkNoShow 车主在开始时间之后标记未到
func (s *BookingService) MarkNoShow(ctx context.Context, userID, bookingID int64) (*models.BookingDetail, error) {
	return s.transition(ctx, bookingID, state.EventNoShow,
		func(bd *models.BookingDetail, now time.Time) error {
			if userID != SystemActor && userID != bd.HostID {
				return apperr.Forbidden("Only the host can mark a no-show")
			}
			if now.Before(bd.StartTime) {
				return apperr.Business(apperr.CodeNoShowTooEarly, "A booking cannot be marked as no-show before its start time")
			}
			return nil
		},
		nil,
		func(bd *models.BookingDetail) []models.NotificationPayload {
			return []models.NotificationPayload{
				{Event: "no_show", UserID: bd.DriverID, Reference: bd.Reference, Message: "Your booking was marked as a no-show"},
			}
		},
	)
}

// DetectArrival 距车位 100 米以内时标记到达
func (s *BookingService) DetectArrival(ctx context.Context, bd *models.BookingDetail, lat, lng float64) (bool, error) {
	if bd.Status != models.BookingConfirmed {
		return false, nil
	}
	if !geo.Within(lat, lng, bd.Latitude, bd.Longitude, geo.ArrivalThresholdMeters) {
		return false, nil
	}
	if _, err := s.MarkArrival(ctx, SystemActor, bd.ID); err != nil {
		return false, err
	}
	return true, nil
}

// ReportLocation 司机上报位置，驱动到达与驶离检测
func (s *BookingService) ReportLocation(ctx context.Context, userID, bookingID int64, lat, lng float64) (*LocationResult, error) {
	bd, err := s.GetBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != bd.DriverID {
		return nil, apperr.Forbidden("Only the driver can report location")
	}
	if state.IsTerminal(bd.Status) {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, fmt.Sprintf("Booking is already %s", bd.Status))
	}

	res := &LocationResult{
		Booking:        bd,
		DistanceMeters: geo.DistanceMeters(lat, lng, bd.Latitude, bd.Longitude),
	}

	switch bd.Status {
	case models.BookingConfirmed:
		arrived, err := s.DetectArrival(ctx, bd, lat, lng)
		if err != nil {
			return nil, err
		}
		res.Arrived = arrived
	case models.BookingActive:
		if res.DistanceMeters > DepartureThresholdMeters {
			if _, err := s.MarkDeparture(ctx, SystemActor, bd.ID); err != nil {
				return nil, err
			}
			res.Departed = true
		}
	}

	if res.Arrived || res.Departed {
		if res.Booking, err = s.store.GetByID(ctx, bookingID); err != nil {
			return nil, storeError(err, "Booking not found")
		}
	}
	return res, nil
}

// FindUpcoming 指定时间窗口内即将开始、尚未推送导航的预订
func (s *BookingService) FindUpcoming(ctx context.Context, within time.Duration) ([]*models.BookingDetail, error) {
	now := s.now()
	return s.store.FindUpcoming(ctx, now, now.Add(within))
}

// AwaitingArrival 开始时间前后 window 内等待到达检测的预订
func (s *BookingService) AwaitingArrival(ctx context.Context, window time.Duration) ([]*models.BookingDetail, error) {
	now := s.now()
	return s.store.ListAwaitingArrival(ctx, now.Add(-window), now.Add(window))
}

// MarkNavigationSent 导航推送成功后调用
func (s *BookingService) MarkNavigationSent(ctx context.Context, bookingID int64) error {
	return s.store.MarkNavigationSent(ctx, bookingID)
}

// GetBooking 仅司机或车主可查看
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID int64) (*models.BookingDetail, error) {
	bd, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "Booking not found")
	}
	if userID != SystemActor && !isParticipant(bd, userID) {
		return nil, apperr.Forbidden("You do not have access to this booking")
	}
	return bd, nil
}

// ListDriverBookings 司机的预订
func (s *BookingService) ListDriverBookings(ctx context.Context, driverID int64, page, limit int) (*BookingPage, error) {
	page, limit = normalizePage(page, limit)
	bookings, total, err := s.store.ListByDriver(ctx, driverID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &BookingPage{Bookings: nonNil(bookings), Total: total, Page: page, Limit: limit}, nil
}

// ListHostBookings 车主收到的预订
func (s *BookingService) ListHostBookings(ctx context.Context, hostID int64, page, limit int) (*BookingPage, error) {
	page, limit = normalizePage(page, limit)
	bookings, total, err := s.store.ListByHost(ctx, hostID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &BookingPage{Bookings: nonNil(bookings), Total: total, Page: page, Limit: limit}, nil
}

// HostEarnings 车主收益
func (s *BookingService) HostEarnings(ctx context.Context, hostID int64) (*models.HostEarnings, error) {
	return s.store.HostEarnings(ctx, hostID)
}

// transition 在事务内锁定预订、校验并推进状态
func (s *BookingService) transition(
	ctx context.Context,
	bookingID int64,
	event string,
	check func(bd *models.BookingDetail, now time.Time) error,
	apply func(c *repository.StatusChange, now time.Time),
	notices func(bd *models.BookingDetail) []models.NotificationPayload,
) (*models.BookingDetail, error) {
	now := s.now()

	var (
		detail *models.BookingDetail
		from   string
	)
	err := s.store.WithTx(ctx, func(tx repository.BookingTx) error {
		bd, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return storeError(err, "Booking not found")
		}
		if check != nil {
			if err := check(bd, now); err != nil {
				return err
			}
		}

		next, err := nextStatus(bd.Status, event)
		if err != nil {
			return err
		}

		change := repository.StatusChange{Status: next}
		if apply != nil {
			apply(&change, now)
		}
		if err := tx.UpdateStatus(ctx, bd.ID, change); err != nil {
			return err
		}

		if notices != nil {
			for _, n := range notices(bd) {
				if err := enqueue(ctx, tx, bd.ID, models.TaskNotification, n, now); err != nil {
					return err
				}
			}
		}

		from = bd.Status
		bd.Status = next
		applyChange(&bd.Booking, change)
		detail = bd
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking status changed",
		zap.Int64("booking_id", detail.ID),
		zap.String("event", event),
		zap.String("from", from),
		zap.String("to", detail.Status),
	)
	s.publish(MsgTypeBookingUpdated, detail)
	return detail, nil
}

func (s *BookingService) publish(msgType string, bd *models.BookingDetail) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastMessage(msgType, BookingEvent{
		BookingID: bd.ID,
		Reference: bd.Reference,
		Status:    bd.Status,
		DriverID:  bd.DriverID,
		HostID:    bd.HostID,
	})
}

func nextStatus(current, event string) (string, error) {
	next, err := state.Next(current, event)
	if err != nil {
		if errors.Is(err, state.ErrInvalidTransition) {
			return "", apperr.Conflict(apperr.CodeInvalidTransition,
				fmt.Sprintf("Cannot %s a booking that is %s", event, current))
		}
		return "", err
	}
	return next, nil
}

func applyChange(b *models.Booking, c repository.StatusChange) {
	if c.ArrivalAt != nil {
		b.ArrivalDetectedAt = c.ArrivalAt
	}
	if c.DepartureAt != nil {
		b.DepartureDetectedAt = c.DepartureAt
	}
	if c.CancelledAt != nil {
		b.CancelledAt = c.CancelledAt
	}
	if c.Reason != nil {
		b.CancellationReason = c.Reason
	}
}

func completedNotices(bd *models.BookingDetail) []models.NotificationPayload {
	return []models.NotificationPayload{
		{Event: "completed", UserID: bd.DriverID, Reference: bd.Reference, Message: "Thanks for parking with Driveway Hub", Amount: bd.TotalAmount},
		{Event: "completed", UserID: bd.HostID, Reference: bd.Reference, Message: fmt.Sprintf("Booking %s completed", bd.Reference), Amount: bd.HostEarnings},
	}
}

func enqueue(ctx context.Context, tx repository.BookingTx, bookingID int64, kind string, payload any, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return tx.EnqueueTask(ctx, &models.Task{
		BookingID:     bookingID,
		Kind:          kind,
		Payload:       data,
		NextAttemptAt: now,
	})
}

func isParticipant(bd *models.BookingDetail, userID int64) bool {
	return userID == bd.DriverID || userID == bd.HostID
}

// storeError 把仓库错误转为应用错误
func storeError(err error, notFoundMsg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFoundMsg)
	}
	if appErr := apperr.FromDatabase(err); appErr != nil {
		return appErr
	}
	return err
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func nonNil(bookings []*models.BookingDetail) []*models.BookingDetail {
	if bookings == nil {
		return []*models.BookingDetail{}
	}
	return bookings
}

// generateReference 生成 DH-XXXXXX 预订号
func generateReference() (string, error) {
	buf := make([]byte, referenceLength)
	base := big.NewInt(int64(len(referenceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate booking reference: %w", err)
		}
		buf[i] = referenceAlphabet[n.Int64()]
	}
	return referencePrefix + string(buf), nil
}
