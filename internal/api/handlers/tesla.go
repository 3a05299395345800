package handlers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/langchou/drivewayhub/internal/api/middleware"
	"github.com/langchou/drivewayhub/internal/apperr"
)

var commandPattern = regexp.MustCompile(`^[a-z_]{1,64}$`)

type teslaCallbackRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

// requireTesla Tesla 未配置时直接返回 503
func (h *Handler) requireTesla(c *gin.Context) {
	if h.tesla == nil {
		h.respondError(c, apperr.New(http.StatusServiceUnavailable, apperr.CodeTeslaNotConnected, "Tesla integration is not configured"))
		return
	}
	c.Next()
}

// TeslaAuthURL 生成授权地址
// GET /api/auth/tesla
func (h *Handler) TeslaAuthURL(c *gin.Context) {
	req, err := h.tesla.StartAuthorization(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": req.URL, "state": req.State})
}

// TeslaCallback 用授权码换取令牌并同步车辆
// POST /api/auth/tesla/callback
func (h *Handler) TeslaCallback(c *gin.Context) {
	var req teslaCallbackRequest
	if !h.bind(c, &req) {
		return
	}

	vehicles, err := h.tesla.CompleteAuthorization(c.Request.Context(), middleware.UserID(c), req.Code, req.State)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connected": true, "vehicles": vehicles})
}

// TeslaDisconnect 解除 Tesla 绑定
// DELETE /api/auth/tesla
func (h *Handler) TeslaDisconnect(c *gin.Context) {
	if err := h.tesla.Disconnect(c.Request.Context(), middleware.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connected": false})
}

// TeslaVehicles Fleet API 车辆列表
// GET /api/tesla/vehicles
func (h *Handler) TeslaVehicles(c *gin.Context) {
	vehicles, err := h.tesla.ListVehicles(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// TeslaVehicleData 车辆完整数据
// GET /api/tesla/vehicles/:id
func (h *Handler) TeslaVehicleData(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	data, err := h.tesla.VehicleData(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// TeslaWake 唤醒车辆
// POST /api/tesla/vehicles/:id/wake
func (h *Handler) TeslaWake(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	v, err := h.tesla.WakeUp(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": v})
}

// TeslaCommand 发送车辆指令
// POST /api/tesla/vehicles/:id/command/:command
func (h *Handler) TeslaCommand(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	command := c.Param("command")
	if !commandPattern.MatchString(command) {
		h.respondError(c, apperr.Validation("", "Invalid command"))
		return
	}

	var params map[string]any
	if c.Request.ContentLength != 0 && !h.bind(c, &params) {
		return
	}

	res, err := h.tesla.SendCommand(c.Request.Context(), middleware.UserID(c), id, command, params)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

// SyncTeslaVehicles 重新同步车辆
// POST /api/tesla/sync
func (h *Handler) SyncTeslaVehicles(c *gin.Context) {
	vehicles, err := h.tesla.SyncVehicles(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}
