package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/drivewayhub/internal/api/middleware"
	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/models"
	"github.com/langchou/drivewayhub/internal/repository"
	"github.com/langchou/drivewayhub/internal/service"
)

type searchQuery struct {
	Lat        *float64 `form:"lat" binding:"omitempty,min=-90,max=90"`
	Lng        *float64 `form:"lng" binding:"omitempty,min=-180,max=180"`
	RadiusKm   float64  `form:"radius_km" binding:"omitempty,gt=0,max=100"`
	EVCharging bool     `form:"ev_charging"`
	Limit      int      `form:"limit" binding:"omitempty,min=1,max=100"`
}

type createDrivewayRequest struct {
	Title              string   `json:"title" binding:"required"`
	Description        string   `json:"description"`
	Address            string   `json:"address" binding:"required"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	ZipCode            string   `json:"zip_code"`
	Latitude           float64  `json:"latitude" binding:"min=-90,max=90"`
	Longitude          float64  `json:"longitude" binding:"min=-180,max=180"`
	DrivewayType       string   `json:"driveway_type"`
	HourlyRate         float64  `json:"hourly_rate" binding:"required,gt=0"`
	DailyRate          *float64 `json:"daily_rate" binding:"omitempty,gt=0"`
	MaxVehicleLength   float64  `json:"max_vehicle_length" binding:"required,gt=0"`
	MaxVehicleWidth    float64  `json:"max_vehicle_width" binding:"required,gt=0"`
	MaxVehicleHeight   *float64 `json:"max_vehicle_height" binding:"omitempty,gt=0"`
	HasEVCharging      bool     `json:"has_ev_charging"`
	IsCovered          bool     `json:"is_covered"`
	HasSecurityCamera  bool     `json:"has_security_camera"`
	AccessInstructions string   `json:"access_instructions"`
}

type updateDrivewayRequest struct {
	Title              *string  `json:"title" binding:"omitempty,min=1"`
	Description        *string  `json:"description"`
	Address            *string  `json:"address" binding:"omitempty,min=1"`
	City               *string  `json:"city"`
	State              *string  `json:"state"`
	ZipCode            *string  `json:"zip_code"`
	Latitude           *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude          *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
	DrivewayType       *string  `json:"driveway_type"`
	HourlyRate         *float64 `json:"hourly_rate" binding:"omitempty,gt=0"`
	DailyRate          *float64 `json:"daily_rate" binding:"omitempty,gt=0"`
	MaxVehicleLength   *float64 `json:"max_vehicle_length" binding:"omitempty,gt=0"`
	MaxVehicleWidth    *float64 `json:"max_vehicle_width" binding:"omitempty,gt=0"`
	MaxVehicleHeight   *float64 `json:"max_vehicle_height" binding:"omitempty,gt=0"`
	HasEVCharging      *bool    `json:"has_ev_charging"`
	IsCovered          *bool    `json:"is_covered"`
	HasSecurityCamera  *bool    `json:"has_security_camera"`
	AccessInstructions *string  `json:"access_instructions"`
	ListingStatus      *string  `json:"listing_status" binding:"omitempty,oneof=active inactive"`
}

type availabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// SearchDriveways 可预订车位，带坐标时按距离排序
// GET /api/driveways?lat=&lng=&radius_km=&ev_charging=
func (h *Handler) SearchDriveways(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	if (q.Lat == nil) != (q.Lng == nil) {
		h.respondError(c, apperr.Validation("", "lat and lng must be provided together"))
		return
	}

	var params *repository.SearchParams
	if q.Lat != nil {
		params = &repository.SearchParams{
			Latitude:   *q.Lat,
			Longitude:  *q.Lng,
			RadiusKm:   q.RadiusKm,
			EVCharging: q.EVCharging,
			Limit:      q.Limit,
		}
	}

	driveways, err := h.driveways.Search(c.Request.Context(), params)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": driveways})
}

// GetDriveway 车位详情
// GET /api/driveways/:id
func (h *Handler) GetDriveway(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	d, err := h.driveways.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

// CreateDriveway 发布车位
// POST /api/driveways
func (h *Handler) CreateDriveway(c *gin.Context) {
	var req createDrivewayRequest
	if !h.bind(c, &req) {
		return
	}

	d, err := h.driveways.Create(c.Request.Context(), middleware.UserID(c), &models.Driveway{
		Title:              req.Title,
		Description:        req.Description,
		Address:            req.Address,
		City:               req.City,
		State:              req.State,
		ZipCode:            req.ZipCode,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		DrivewayType:       req.DrivewayType,
		HourlyRate:         req.HourlyRate,
		DailyRate:          req.DailyRate,
		MaxVehicleLength:   req.MaxVehicleLength,
		MaxVehicleWidth:    req.MaxVehicleWidth,
		MaxVehicleHeight:   req.MaxVehicleHeight,
		IsAvailable:        true,
		HasEVCharging:      req.HasEVCharging,
		IsCovered:          req.IsCovered,
		HasSecurityCamera:  req.HasSecurityCamera,
		AccessInstructions: req.AccessInstructions,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": d})
}

// ListHostDriveways 车主的车位
// GET /api/host/driveways
func (h *Handler) ListHostDriveways(c *gin.Context) {
	driveways, err := h.driveways.ListByHost(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": driveways})
}

// UpdateDriveway 修改车位
// PATCH /api/host/driveways/:id
func (h *Handler) UpdateDriveway(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req updateDrivewayRequest
	if !h.bind(c, &req) {
		return
	}

	d, err := h.driveways.Update(c.Request.Context(), middleware.UserID(c), id, service.DrivewayPatch{
		Title:              req.Title,
		Description:        req.Description,
		Address:            req.Address,
		City:               req.City,
		State:              req.State,
		ZipCode:            req.ZipCode,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		DrivewayType:       req.DrivewayType,
		HourlyRate:         req.HourlyRate,
		DailyRate:          req.DailyRate,
		MaxVehicleLength:   req.MaxVehicleLength,
		MaxVehicleWidth:    req.MaxVehicleWidth,
		MaxVehicleHeight:   req.MaxVehicleHeight,
		HasEVCharging:      req.HasEVCharging,
		IsCovered:          req.IsCovered,
		HasSecurityCamera:  req.HasSecurityCamera,
		AccessInstructions: req.AccessInstructions,
		ListingStatus:      req.ListingStatus,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

// DeleteDriveway 删除车位（下架，历史预订保留）
// DELETE /api/host/driveways/:id
func (h *Handler) DeleteDriveway(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.driveways.Deactivate(c.Request.Context(), middleware.UserID(c), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"driveway_id": id, "listing_status": models.ListingInactive})
}

// SetDrivewayAvailability 上下架
// PATCH /api/host/driveways/:id/availability
func (h *Handler) SetDrivewayAvailability(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req availabilityRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.driveways.SetAvailability(c.Request.Context(), middleware.UserID(c), id, *req.Available); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"driveway_id": id, "available": *req.Available})
}

// HostEarnings 车主收益
// GET /api/host/earnings
func (h *Handler) HostEarnings(c *gin.Context) {
	earnings, err := h.bookings.HostEarnings(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": earnings})
}
