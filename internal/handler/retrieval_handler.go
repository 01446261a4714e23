package handler

import (
	"github.com/ashwinyue/next-tutor/internal/middleware"
	"github.com/ashwinyue/next-tutor/internal/service"
	"github.com/gin-gonic/gin"
)

// RetrievalHandler 检索处理器
type RetrievalHandler struct {
	svc *service.Services
}

// NewRetrievalHandler 创建检索处理器
func NewRetrievalHandler(svc *service.Services) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

// SearchRequest 混合检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// TopicRequest 按主题检索请求
type TopicRequest struct {
	Topic string `json:"topic" binding:"required"`
	TopK  int    `json:"top_k"`
}

// Search 查询扩展加混合检索
// POST /api/v1/retrieval/search
func (h *RetrievalHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	result, err := h.svc.Retriever.Retrieve(c.Request.Context(), middleware.GetOwnerID(c), req.Query, h.topK(req.TopK))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

// ByTopic 按主题子串检索
// POST /api/v1/retrieval/by-topic
func (h *RetrievalHandler) ByTopic(c *gin.Context) {
	var req TopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	chunks, err := h.svc.Retriever.RetrieveByTopic(c.Request.Context(), middleware.GetOwnerID(c), req.Topic, h.topK(req.TopK))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"chunks": chunks})
}

func (h *RetrievalHandler) topK(n int) int {
	if n <= 0 {
		return h.svc.Config.Retrieval.TopK
	}
	return n
}
