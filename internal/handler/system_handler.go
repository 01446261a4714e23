package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ashwinyue/next-tutor/internal/service"
	"github.com/gin-gonic/gin"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	svc *service.Services
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(svc *service.Services) *SystemHandler {
	return &SystemHandler{svc: svc}
}

// Health 健康检查
// GET /health
// 任一依赖不可用时返回 503
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if h.svc.DB != nil {
		sqlDB, err := h.svc.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		record("database", err)
	}
	if h.svc.Redis != nil {
		record("redis", h.svc.Redis.Ping(ctx).Err())
	} else {
		checks["redis"] = "disabled"
	}
	record("store", h.svc.Store.Ping(ctx))

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": h.svc.Config.App.Version,
		"checks":  checks,
	})
}
