package models

import "time"

// 预订状态
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingActive    = "active"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
	BookingNoShow    = "no_show"
)

// Booking 预订记录
type Booking struct {
	ID                  int64      `json:"id" db:"id"`
	Reference           string     `json:"booking_reference" db:"booking_reference"`
	DriverID            int64      `json:"driver_id" db:"driver_id"`
	VehicleID           int64      `json:"vehicle_id" db:"vehicle_id"`
	DrivewayID          int64      `json:"driveway_id" db:"driveway_id"`
	StartTime           time.Time  `json:"start_time" db:"start_time"`
	EndTime             time.Time  `json:"end_time" db:"end_time"`
	TotalHours          int        `json:"total_hours" db:"total_hours"`
	HourlyRate          float64    `json:"hourly_rate" db:"hourly_rate"`
	Subtotal            float64    `json:"subtotal" db:"subtotal"`
	PlatformFee         float64    `json:"platform_fee" db:"platform_fee"`
	TotalAmount         float64    `json:"total_amount" db:"total_amount"`
	HostEarnings        float64    `json:"host_earnings" db:"host_earnings"`
	Status              string     `json:"status" db:"status"`
	DriverNotes         *string    `json:"driver_notes,omitempty" db:"driver_notes"`
	NavigationSent      bool       `json:"navigation_sent" db:"navigation_sent"`
	ArrivalDetectedAt   *time.Time `json:"arrival_detected_at,omitempty" db:"arrival_detected_at"`
	DepartureDetectedAt *time.Time `json:"departure_detected_at,omitempty" db:"departure_detected_at"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason  *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Overlaps 时间段是否与给定区间重叠
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && start.Before(b.EndTime)
}

// Blocking 该状态是否占用车位时间段
func (b *Booking) Blocking() bool {
	switch b.Status {
	case BookingPending, BookingConfirmed, BookingActive:
		return true
	}
	return false
}

// BookingDetail 预订详情（附带车位与车辆）
type BookingDetail struct {
	Booking
	DrivewayTitle   string  `json:"driveway_title"`
	DrivewayAddress string  `json:"driveway_address"`
	HostID          int64   `json:"host_id"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	VehicleName     string  `json:"vehicle_name"`
	TeslaID         *int64  `json:"tesla_id,omitempty"`
}

// HostEarnings 车主收益汇总
type HostEarnings struct {
	HostID            int64   `json:"host_id"`
	CompletedBookings int64   `json:"completed_bookings"`
	UpcomingBookings  int64   `json:"upcoming_bookings"`
	TotalEarnings     float64 `json:"total_earnings"`
	PendingEarnings   float64 `json:"pending_earnings"`
}
