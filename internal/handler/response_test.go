package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/ingest"
	"github.com/ashwinyue/next-tutor/internal/service/retrieval"
	"github.com/ashwinyue/next-tutor/internal/service/tutor"
	"github.com/gin-gonic/gin"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
	}{
		{tutor.ErrInvalidID, http.StatusBadRequest},
		{tutor.ErrEmptyAnswer, http.StatusBadRequest},
		{fmt.Errorf("%w: \"a.exe\"", ingest.ErrUnsupportedType), http.StatusBadRequest},
		{repository.ErrFileNotFound, http.StatusNotFound},
		{tutor.ErrSessionNotFound, http.StatusNotFound},
		{tutor.ErrSessionAlreadyCompleted, http.StatusConflict},
		{tutor.ErrConcurrentAnswer, http.StatusConflict},
		{ingest.ErrFileProcessing, http.StatusConflict},
		{ingest.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{tutor.ErrSessionNotCompleted, http.StatusUnprocessableEntity},
		{tutor.ErrNoAnswers, http.StatusUnprocessableEntity},
		{tutor.ErrNoContext, http.StatusUnprocessableEntity},
		{retrieval.ErrEmptyTopic, http.StatusBadRequest},
		{retrieval.ErrEmptyQuery, http.StatusBadRequest},
		{retrieval.ErrNoMaterial, http.StatusUnprocessableEntity},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)
			if w.Code != tt.status {
				t.Errorf("Error(%v) status = %d, want %d", tt.err, w.Code, tt.status)
			}
		})
	}
}

func TestError_HidesInternalMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, errors.New("dial tcp 10.0.0.1:5432: secret"))
	if got := w.Body.String(); got != `{"code":500,"msg":"internal server error"}` {
		t.Errorf("body = %s", got)
	}
}
