package handler

import (
	"github.com/ashwinyue/next-tutor/internal/middleware"
	"github.com/ashwinyue/next-tutor/internal/service"
	"github.com/gin-gonic/gin"
)

// TeachingHandler 苏格拉底式教学会话处理器
type TeachingHandler struct {
	svc *service.Services
}

// NewTeachingHandler 创建教学会话处理器
func NewTeachingHandler(svc *service.Services) *TeachingHandler {
	return &TeachingHandler{svc: svc}
}

// StartSessionRequest 开始会话请求
type StartSessionRequest struct {
	Topic string `json:"topic" binding:"required"`
}

// TopicsQuery 推荐主题查询参数
type TopicsQuery struct {
	Count int `form:"count" binding:"omitempty,min=1,max=20"`
}

// AnswerRequest 提交回答请求
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// StartSession 开始会话并返回第一个问题
// POST /api/v1/teaching/sessions
func (h *TeachingHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Tutor.Start(c.Request.Context(), middleware.GetOwnerID(c), req.Topic)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, result)
}

// SuggestTopics 根据已上传资料推荐可以教的主题
// GET /api/v1/teaching/topics
func (h *TeachingHandler) SuggestTopics(c *gin.Context) {
	var q TopicsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		BadRequest(c, err.Error())
		return
	}
	cfg := h.svc.Config.Teaching
	if q.Count == 0 {
		q.Count = cfg.SuggestTopics
	}

	result, err := h.svc.Retriever.SuggestTopics(c.Request.Context(), middleware.GetOwnerID(c), q.Count, cfg.SuggestSample)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

// ListSessions 列出会话
// GET /api/v1/teaching/sessions
func (h *TeachingHandler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.Tutor.ListSessions(c.Request.Context(), middleware.GetOwnerID(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, sessions)
}

// GetSession 获取会话状态和问答记录
// GET /api/v1/teaching/sessions/:id
func (h *TeachingHandler) GetSession(c *gin.Context) {
	session, err := h.svc.Tutor.GetSession(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, session)
}

// DeleteSession 删除会话
// DELETE /api/v1/teaching/sessions/:id
func (h *TeachingHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.Tutor.DeleteSession(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

// SubmitAnswer 提交当前问题的回答
// POST /api/v1/teaching/sessions/:id/answers
func (h *TeachingHandler) SubmitAnswer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Tutor.SubmitAnswer(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id"), req.Answer)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

// Evaluate 获取会话评估
// GET /api/v1/teaching/sessions/:id/evaluation
func (h *TeachingHandler) Evaluate(c *gin.Context) {
	result, err := h.svc.Tutor.Evaluate(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}
