package router

import (
	"github.com/ashwinyue/next-tutor/internal/handler"
	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, log *logger.Logger, corsOrigins []string) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware(corsOrigins))

	// 健康检查
	r.GET("/health", h.System.Health)

	// API v1
	v1 := r.Group("/api/v1", middleware.RequireOwner())
	{
		// Ingestion 资料入库
		ingestion := v1.Group("/ingestion")
		{
			ingestion.POST("/upload", h.Ingestion.Upload)
			ingestion.GET("/status/:file_id", h.Ingestion.GetStatus)
			ingestion.GET("/files", h.Ingestion.ListFiles)
			ingestion.DELETE("/files/:file_id", h.Ingestion.DeleteFile)
			ingestion.GET("/files/:file_id/chunks", h.Ingestion.ListChunks)
		}

		// Retrieval 检索
		retrieval := v1.Group("/retrieval")
		{
			retrieval.POST("/search", h.Retrieval.Search)
			retrieval.POST("/by-topic", h.Retrieval.ByTopic)
		}

		// Teaching 教学会话
		v1.GET("/teaching/topics", h.Teaching.SuggestTopics)
		sessions := v1.Group("/teaching/sessions")
		{
			sessions.POST("", h.Teaching.StartSession)
			sessions.GET("", h.Teaching.ListSessions)
			sessions.GET("/:id", h.Teaching.GetSession)
			sessions.DELETE("/:id", h.Teaching.DeleteSession)
			sessions.POST("/:id/answers", h.Teaching.SubmitAnswer)
			sessions.GET("/:id/evaluation", h.Teaching.Evaluate)
		}
	}

	return r
}
