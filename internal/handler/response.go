package handler

import (
	"errors"
	"net/http"

	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/ingest"
	"github.com/ashwinyue/next-tutor/internal/service/retrieval"
	"github.com/ashwinyue/next-tutor/internal/service/tutor"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// Created 创建成功响应 (201)
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

// Accepted 已受理响应 (202)
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Data: data})
}

// NoContent 无内容响应 (204)
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, msg)
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	abort(c, http.StatusNotFound, msg)
}

// Conflict 409 错误响应
func Conflict(c *gin.Context, msg string) {
	abort(c, http.StatusConflict, msg)
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg string) {
	abort(c, http.StatusInternalServerError, msg)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: status, Msg: msg})
}

// errorStatus 业务错误到 HTTP 状态码的映射，按顺序匹配
var errorStatus = []struct {
	err    error
	status int
}{
	{tutor.ErrInvalidID, http.StatusBadRequest},
	{ingest.ErrInvalidID, http.StatusBadRequest},
	{tutor.ErrEmptyAnswer, http.StatusBadRequest},
	{tutor.ErrEmptyTopic, http.StatusBadRequest},
	{retrieval.ErrEmptyQuery, http.StatusBadRequest},
	{retrieval.ErrEmptyTopic, http.StatusBadRequest},
	{ingest.ErrUnsupportedType, http.StatusBadRequest},
	{ingest.ErrEmptyFile, http.StatusBadRequest},
	{tutor.ErrSessionNotFound, http.StatusNotFound},
	{repository.ErrSessionNotFound, http.StatusNotFound},
	{repository.ErrFileNotFound, http.StatusNotFound},
	{tutor.ErrSessionAlreadyCompleted, http.StatusConflict},
	{tutor.ErrConcurrentAnswer, http.StatusConflict},
	{ingest.ErrFileProcessing, http.StatusConflict},
	{ingest.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{tutor.ErrSessionNotCompleted, http.StatusUnprocessableEntity},
	{tutor.ErrNoAnswers, http.StatusUnprocessableEntity},
	{tutor.ErrNoContext, http.StatusUnprocessableEntity},
	{retrieval.ErrNoMaterial, http.StatusUnprocessableEntity},
	{ingest.ErrClosed, http.StatusServiceUnavailable},
}

// Error 根据错误类型返回相应的错误响应
func Error(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			abort(c, m.status, err.Error())
			return
		}
	}
	InternalServerError(c, "internal server error")
}
