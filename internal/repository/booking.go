package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/drivewayhub/internal/models"
)

// BookingTx 预订事务内的操作
type BookingTx interface {
	LockDriveway(ctx context.Context, id int64) (*models.Driveway, error)
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	HasConflict(ctx context.Context, drivewayID int64, start, end time.Time) (bool, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
	LockBooking(ctx context.Context, id int64) (*models.BookingDetail, error)
	UpdateStatus(ctx context.Context, id int64, change StatusChange) error
	EnqueueTask(ctx context.Context, t *models.Task) error
}

// StatusChange 状态变更及附带的时间字段，nil 字段保持不变
type StatusChange struct {
	Status      string
	ArrivalAt   *time.Time
	DepartureAt *time.Time
	CancelledAt *time.Time
	Reason      *string
}

// BookingRepository 预订数据仓库
type BookingRepository struct {
	db *DB
}

// NewBookingRepository 创建预订仓库
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx 在事务中执行
func (r *BookingRepository) WithTx(ctx context.Context, fn func(tx BookingTx) error) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		return fn(&bookingTx{tx: tx})
	})
}

const bookingColumns = `b.id, b.booking_reference, b.driver_id, b.vehicle_id, b.driveway_id, b.start_time, b.end_time,
	b.total_hours, b.hourly_rate, b.subtotal, b.platform_fee, b.total_amount, b.host_earnings, b.status,
	b.driver_notes, b.navigation_sent, b.arrival_detected_at, b.departure_detected_at, b.cancelled_at,
	b.cancellation_reason, b.created_at, b.updated_at`

const bookingDetailSelect = `SELECT ` + bookingColumns + `,
	d.title, d.address, d.host_id, d.latitude, d.longitude,
	COALESCE(NULLIF(v.display_name, ''), v.make || ' ' || v.model), v.tesla_id
	FROM bookings b
	JOIN driveways d ON d.id = b.driveway_id
	JOIN vehicles v ON v.id = b.vehicle_id`

func scanBookingDetail(row pgx.Row) (*models.BookingDetail, error) {
	bd := &models.BookingDetail{}
	b := &bd.Booking
	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.DriverID,
		&b.VehicleID,
		&b.DrivewayID,
		&b.StartTime,
		&b.EndTime,
		&b.TotalHours,
		&b.HourlyRate,
		&b.Subtotal,
		&b.PlatformFee,
		&b.TotalAmount,
		&b.HostEarnings,
		&b.Status,
		&b.DriverNotes,
		&b.NavigationSent,
		&b.ArrivalDetectedAt,
		&b.DepartureDetectedAt,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.CreatedAt,
		&b.UpdatedAt,
		&bd.DrivewayTitle,
		&bd.DrivewayAddress,
		&bd.HostID,
		&bd.Latitude,
		&bd.Longitude,
		&bd.VehicleName,
		&bd.TeslaID,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return bd, nil
}

func collectBookingDetails(rows pgx.Rows) ([]*models.BookingDetail, error) {
	defer rows.Close()

	var bookings []*models.BookingDetail
	for rows.Next() {
		bd, err := scanBookingDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, bd)
	}
	return bookings, rows.Err()
}

// GetByID 获取预订详情
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.BookingDetail, error) {
	bd, err := scanBookingDetail(r.db.Pool.QueryRow(ctx, bookingDetailSelect+` WHERE b.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return bd, nil
}

// ListByDriver 司机的预订，按开始时间倒序
func (r *BookingRepository) ListByDriver(ctx context.Context, driverID int64, limit, offset int) ([]*models.BookingDetail, int64, error) {
	rows, err := r.db.Pool.Query(ctx, bookingDetailSelect+` WHERE b.driver_id = $1 ORDER BY b.start_time DESC LIMIT $2 OFFSET $3`, driverID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings by driver: %w", err)
	}
	bookings, err := collectBookingDetails(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE driver_id = $1`, driverID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings by driver: %w", err)
	}
	return bookings, total, nil
}

// ListByHost 车主名下车位的预订
func (r *BookingRepository) ListByHost(ctx context.Context, hostID int64, limit, offset int) ([]*models.BookingDetail, int64, error) {
	rows, err := r.db.Pool.Query(ctx, bookingDetailSelect+` WHERE d.host_id = $1 ORDER BY b.start_time DESC LIMIT $2 OFFSET $3`, hostID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings by host: %w", err)
	}
	bookings, err := collectBookingDetails(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	err = r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings b JOIN driveways d ON d.id = b.driveway_id WHERE d.host_id = $1`, hostID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count bookings by host: %w", err)
	}
	return bookings, total, nil
}

// FindUpcoming 即将开始且尚未推送导航的已确认预订，outbox 中仍有待投递导航任务的除外
func (r *BookingRepository) FindUpcoming(ctx context.Context, from, to time.Time) ([]*models.BookingDetail, error) {
	rows, err := r.db.Pool.Query(ctx, bookingDetailSelect+`
		WHERE b.status = 'confirmed' AND b.navigation_sent = FALSE
			AND b.start_time BETWEEN $1 AND $2
			AND NOT EXISTS (
				SELECT 1 FROM booking_tasks t
				WHERE t.booking_id = b.id AND t.kind = 'navigation' AND t.status = 'pending'
			)
		ORDER BY b.start_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("find upcoming bookings: %w", err)
	}
	return collectBookingDetails(rows)
}

// ListAwaitingArrival 开始时间附近、等待到达检测的已确认预订
func (r *BookingRepository) ListAwaitingArrival(ctx context.Context, from, to time.Time) ([]*models.BookingDetail, error) {
	rows, err := r.db.Pool.Query(ctx, bookingDetailSelect+`
		WHERE b.status = 'confirmed' AND b.arrival_detected_at IS NULL
			AND v.tesla_id IS NOT NULL
			AND b.start_time BETWEEN $1 AND $2
		ORDER BY b.start_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings awaiting arrival: %w", err)
	}
	return collectBookingDetails(rows)
}

// MarkNavigationSent 标记导航已推送
func (r *BookingRepository) MarkNavigationSent(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE bookings SET navigation_sent = TRUE, updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark navigation sent: %w", err)
	}
	return nil
}

// HostEarnings 车主收益汇总
func (r *BookingRepository) HostEarnings(ctx context.Context, hostID int64) (*models.HostEarnings, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE b.status = 'completed'),
			COUNT(*) FILTER (WHERE b.status IN ('pending', 'confirmed', 'active')),
			COALESCE(SUM(b.host_earnings) FILTER (WHERE b.status = 'completed'), 0)::float8,
			COALESCE(SUM(b.host_earnings) FILTER (WHERE b.status IN ('pending', 'confirmed', 'active')), 0)::float8
		FROM bookings b
		JOIN driveways d ON d.id = b.driveway_id
		WHERE d.host_id = $1
	`
	e := &models.HostEarnings{HostID: hostID}
	err := r.db.Pool.QueryRow(ctx, query, hostID).Scan(
		&e.CompletedBookings,
		&e.UpcomingBookings,
		&e.TotalEarnings,
		&e.PendingEarnings,
	)
	if err != nil {
		return nil, fmt.Errorf("host earnings: %w", err)
	}
	return e, nil
}

// bookingTx pgx 事务实现
type bookingTx struct {
	tx pgx.Tx
}

// LockDriveway 锁定车位行，串行化同一车位的并发预订
func (t *bookingTx) LockDriveway(ctx context.Context, id int64) (*models.Driveway, error) {
	d, err := scanDriveway(t.tx.QueryRow(ctx, `SELECT `+drivewayColumns+` FROM driveways WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock driveway: %w", err)
	}
	return d, nil
}

func (t *bookingTx) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, err := scanVehicle(t.tx.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

func (t *bookingTx) HasConflict(ctx context.Context, drivewayID int64, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE driveway_id = $1
				AND status IN ('pending', 'confirmed', 'active')
				AND start_time < $3 AND end_time > $2
		)
	`
	var exists bool
	if err := t.tx.QueryRow(ctx, query, drivewayID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("check booking conflict: %w", err)
	}
	return exists, nil
}

func (t *bookingTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			booking_reference, driver_id, vehicle_id, driveway_id, start_time, end_time,
			total_hours, hourly_rate, subtotal, platform_fee, total_amount, host_earnings,
			status, driver_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		b.Reference,
		b.DriverID,
		b.VehicleID,
		b.DrivewayID,
		b.StartTime,
		b.EndTime,
		b.TotalHours,
		b.HourlyRate,
		b.Subtotal,
		b.PlatformFee,
		b.TotalAmount,
		b.HostEarnings,
		b.Status,
		b.DriverNotes,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *bookingTx) LockBooking(ctx context.Context, id int64) (*models.BookingDetail, error) {
	bd, err := scanBookingDetail(t.tx.QueryRow(ctx, bookingDetailSelect+` WHERE b.id = $1 FOR UPDATE OF b`, id))
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	return bd, nil
}

func (t *bookingTx) UpdateStatus(ctx context.Context, id int64, c StatusChange) error {
	query := `
		UPDATE bookings SET
			status = $2,
			arrival_detected_at = COALESCE($3, arrival_detected_at),
			departure_detected_at = COALESCE($4, departure_detected_at),
			cancelled_at = COALESCE($5, cancelled_at),
			cancellation_reason = COALESCE($6, cancellation_reason),
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query, id, c.Status, c.ArrivalAt, c.DepartureAt, c.CancelledAt, c.Reason)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *bookingTx) EnqueueTask(ctx context.Context, task *models.Task) error {
	return insertTask(ctx, t.tx, task)
}
