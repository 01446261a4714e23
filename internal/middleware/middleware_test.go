package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/testutil"
	"github.com/gin-gonic/gin"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/owner", func(c *gin.Context) { c.String(http.StatusOK, GetOwnerID(c)) })
	r.POST("/owner", func(c *gin.Context) { c.String(http.StatusOK, GetOwnerID(c)) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestRequireOwner(t *testing.T) {
	a := testutil.NewAssertHelper(t)
	r := newEngine(RequireOwner())
	owner := "0b8f2a1e-5d6c-4f3a-9e2b-7c1d0a9f8e7d"

	w := testutil.PerformRequest(t, r, http.MethodGet, "/owner", nil, map[string]string{"X-User-ID": owner})
	a.Equal(http.StatusOK, w.Code)
	a.Equal(owner, w.Body.String())

	w = testutil.PerformRequest(t, r, http.MethodGet, "/owner?user_id="+owner, nil, nil)
	a.Equal(owner, w.Body.String())

	w = testutil.PerformRequest(t, r, http.MethodPost, "/owner", strings.NewReader("user_id="+owner),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	a.Equal(owner, w.Body.String())

	w = testutil.PerformRequest(t, r, http.MethodGet, "/owner", nil, nil)
	a.Equal(http.StatusBadRequest, w.Code)

	w = testutil.PerformRequest(t, r, http.MethodGet, "/owner", nil, map[string]string{"X-User-ID": "bob"})
	a.Equal(http.StatusBadRequest, w.Code)
	a.True(strings.Contains(w.Body.String(), "UUID"), w.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	a := testutil.NewAssertHelper(t)
	r := newEngine(RecoveryMiddleware(logger.NewNop()))

	w := testutil.PerformRequest(t, r, http.MethodGet, "/panic", nil, nil)
	a.Equal(http.StatusInternalServerError, w.Code)
	a.Equal(`{"code":500,"msg":"internal server error"}`, w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	a := testutil.NewAssertHelper(t)

	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://example.com", "*"},
		{"default", nil, "http://example.com", "*"},
		{"listed", []string{"http://localhost:5173"}, "http://localhost:5173", "http://localhost:5173"},
	}
	for _, tt := range tests {
		r := newEngine(CORSMiddleware(tt.origins))
		req := httptest.NewRequest(http.MethodGet, "/owner", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		a.Equal(tt.want, w.Header().Get("Access-Control-Allow-Origin"), tt.name)
	}
}
