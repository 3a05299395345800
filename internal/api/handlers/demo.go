package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartDemo 开始新的演示会话
// POST /api/demo/start
func (h *Handler) StartDemo(c *gin.Context) {
	// 会话生命周期独立于本次请求
	frame := h.demo.Start(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, gin.H{"data": frame})
}

// StopDemo 停止演示
// POST /api/demo/stop
func (h *Handler) StopDemo(c *gin.Context) {
	h.demo.Stop()
	c.JSON(http.StatusOK, gin.H{"data": h.demo.State()})
}

// DemoState 最近一帧
// GET /api/demo/state
func (h *Handler) DemoState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.demo.State()})
}
