package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/drivewayhub/internal/api/middleware"
	"github.com/langchou/drivewayhub/internal/models"
)

type createVehicleRequest struct {
	Make         string   `json:"make" binding:"required"`
	Model        string   `json:"model" binding:"required"`
	Year         int      `json:"year" binding:"omitempty,min=1900,max=2100"`
	Color        string   `json:"color"`
	LicensePlate string   `json:"license_plate"`
	Length       float64  `json:"length" binding:"required,gt=0"`
	Width        float64  `json:"width" binding:"required,gt=0"`
	Height       *float64 `json:"height" binding:"omitempty,gt=0"`
	VIN          *string  `json:"vin" binding:"omitempty,len=17"`
	DisplayName  string   `json:"display_name"`
}

// ListVehicles 当前用户的车辆
// GET /api/users/vehicles
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.vehicles.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// CreateVehicle 手动登记车辆
// POST /api/users/vehicles
func (h *Handler) CreateVehicle(c *gin.Context) {
	var req createVehicleRequest
	if !h.bind(c, &req) {
		return
	}

	v, err := h.vehicles.Create(c.Request.Context(), middleware.UserID(c), &models.Vehicle{
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		Color:        req.Color,
		LicensePlate: req.LicensePlate,
		Length:       req.Length,
		Width:        req.Width,
		Height:       req.Height,
		VIN:          req.VIN,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": v})
}

// GetVehicle 车辆详情
// GET /api/users/vehicles/:id
func (h *Handler) GetVehicle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	v, err := h.vehicles.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": v})
}
