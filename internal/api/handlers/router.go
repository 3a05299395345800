package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/langchou/drivewayhub/internal/api/middleware"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	requireAuth := middleware.RequireAuth(h.issuer)

	api := r.Group("/api")
	{
		// 账号
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		// 演示
		api.POST("/demo/start", h.StartDemo)
		api.POST("/demo/stop", h.StopDemo)
		api.GET("/demo/state", h.DemoState)
	}

	authed := api.Group("", requireAuth)
	{
		// 用户与车辆
		authed.GET("/users/me", h.Me)
		authed.GET("/users/vehicles", h.ListVehicles)
		authed.POST("/users/vehicles", h.CreateVehicle)
		authed.GET("/users/vehicles/:id", h.GetVehicle)

		// 车位
		authed.GET("/driveways", h.SearchDriveways)
		authed.GET("/driveways/:id", h.GetDriveway)
		authed.POST("/driveways", h.CreateDriveway)

		// 车主
		authed.GET("/host/driveways", h.ListHostDriveways)
		authed.PATCH("/host/driveways/:id", h.UpdateDriveway)
		authed.DELETE("/host/driveways/:id", h.DeleteDriveway)
		authed.PATCH("/host/driveways/:id/availability", h.SetDrivewayAvailability)
		authed.GET("/host/bookings", h.ListHostBookings)
		authed.GET("/host/earnings", h.HostEarnings)

		// 预订
		authed.POST("/bookings/create", h.CreateBooking)
		authed.POST("/bookings", h.CreateBooking)
		authed.GET("/bookings", h.ListDriverBookings)
		authed.GET("/bookings/:id", h.GetBooking)
		authed.POST("/bookings/:id/cancel", h.CancelBooking)
		authed.POST("/bookings/:id/arrive", h.transition(h.bookings.MarkArrival))
		authed.POST("/bookings/:id/depart", h.transition(h.bookings.MarkDeparture))
		authed.POST("/bookings/:id/complete", h.transition(h.bookings.CompleteBooking))
		authed.POST("/bookings/:id/no-show", h.transition(h.bookings.MarkNoShow))
		authed.POST("/bookings/:id/location", h.ReportLocation)
	}

	teslaGroup := authed.Group("", h.requireTesla)
	{
		teslaGroup.GET("/auth/tesla", h.TeslaAuthURL)
		teslaGroup.POST("/auth/tesla/callback", h.TeslaCallback)
		teslaGroup.DELETE("/auth/tesla", h.TeslaDisconnect)
		teslaGroup.POST("/tesla/sync", h.SyncTeslaVehicles)
		teslaGroup.GET("/tesla/vehicles", h.TeslaVehicles)
		teslaGroup.GET("/tesla/vehicles/:id", h.TeslaVehicleData)
		teslaGroup.POST("/tesla/vehicles/:id/wake", h.TeslaWake)
		teslaGroup.POST("/tesla/vehicles/:id/command/:command", h.TeslaCommand)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}
