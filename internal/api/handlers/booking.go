package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langchou/drivewayhub/internal/api/middleware"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/service"
)

type createBookingRequest struct {
	DrivewayID  int64     `json:"driveway_id" binding:"required,gt=0"`
	VehicleID   int64     `json:"vehicle_id" binding:"required,gt=0"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	DriverNotes *string   `json:"driver_notes" binding:"omitempty,max=1000"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type locationRequest struct {
	Latitude  *float64 `json:"lat" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"lng" binding:"required,min=-180,max=180"`
}

// CreateBooking 创建预订
// POST /api/bookings/create
func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if !h.bind(c, &req) {
		return
	}

	bd, err := h.bookings.CreateBooking(c.Request.Context(), service.CreateBookingInput{
		DriverID:    middleware.UserID(c),
		VehicleID:   req.VehicleID,
		DrivewayID:  req.DrivewayID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		DriverNotes: req.DriverNotes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"booking_id":        bd.ID,
		"booking_reference": bd.Reference,
		"status":            bd.Status,
		"total_amount":      bd.TotalAmount,
		"platform_fee":      bd.PlatformFee,
		"host_payout":       bd.HostEarnings,
	})
}

// ListDriverBookings 司机的预订
// GET /api/bookings?page=&limit=
func (h *Handler) ListDriverBookings(c *gin.Context) {
	page, err := h.bookings.ListDriverBookings(c.Request.Context(), middleware.UserID(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, page)
}

// ListHostBookings 车主收到的预订
// GET /api/host/bookings?page=&limit=
func (h *Handler) ListHostBookings(c *gin.Context) {
	page, err := h.bookings.ListHostBookings(c.Request.Context(), middleware.UserID(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, page)
}

func respondPage(c *gin.Context, page *service.BookingPage) {
	c.JSON(http.StatusOK, gin.H{
		"data": page.Bookings,
		"pagination": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": page.Total,
		},
	})
}

// GetBooking 预订详情
// GET /api/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	bd, err := h.bookings.GetBooking(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bd})
}

// CancelBooking 取消预订
// POST /api/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req cancelBookingRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}

	bd, err := h.bookings.CancelBooking(c.Request.Context(), middleware.UserID(c), id, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bd})
}

type bookingAction func(ctx context.Context, userID, bookingID int64) (*models.BookingDetail, error)

// transition 无请求体的状态变更
func (h *Handler) transition(action bookingAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			h.respondError(c, err)
			return
		}

		bd, err := action(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": bd})
	}
}

// ReportLocation 司机上报位置，触发到达/离开检测
// POST /api/bookings/:id/location
func (h *Handler) ReportLocation(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req locationRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.bookings.ReportLocation(c.Request.Context(), middleware.UserID(c), id, *req.Latitude, *req.Longitude)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
