package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/auth"
	"github.com/langchou/drivewayhub/internal/demo"
	"github.com/langchou/drivewayhub/internal/service"
	"github.com/langchou/drivewayhub/pkg/ws"
)

// Services 处理器依赖的业务服务，Tesla 为 nil 表示未配置 Tesla 集成
type Services struct {
	Accounts  *service.AccountService
	Driveways *service.DrivewayService
	Vehicles  *service.VehicleService
	Bookings  *service.BookingService
	Tesla     *service.TeslaService
	Demo      *demo.Runner
}

// Handler HTTP 处理器
type Handler struct {
	logger    *zap.Logger
	issuer    *auth.TokenIssuer
	accounts  *service.AccountService
	driveways *service.DrivewayService
	vehicles  *service.VehicleService
	bookings  *service.BookingService
	tesla     *service.TeslaService
	demo      *demo.Runner
	wsHub     *ws.Hub
	devErrors bool
	upgrader  websocket.Upgrader
}

// NewHandler 创建处理器；devErrors 为 true 时 5xx 响应附带原始错误
func NewHandler(logger *zap.Logger, issuer *auth.TokenIssuer, svc Services, wsHub *ws.Hub, devErrors bool) *Handler {
	return &Handler{
		logger:    logger,
		issuer:    issuer,
		accounts:  svc.Accounts,
		driveways: svc.Driveways,
		vehicles:  svc.Vehicles,
		bookings:  svc.Bookings,
		tesla:     svc.Tesla,
		demo:      svc.Demo,
		wsHub:     wsHub,
		devErrors: devErrors,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 来源由 CORS 中间件控制
			},
		},
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	// Serve 阻塞到连接关闭
	h.wsHub.Serve(conn)
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"ws_clients":    h.wsHub.ClientCount(),
		"tesla_enabled": h.tesla != nil,
	})
}

// paramID 解析路径中的数字 ID
func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("", "Invalid "+name)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
