package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ownerKey = "owner_id"

// RequireOwner 从 X-User-ID 头或 user_id 参数读取调用方标识
// 标识必须是 UUID，不做认证
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetHeader("X-User-ID")
		if ownerID == "" {
			ownerID = c.Query("user_id")
		}
		if ownerID == "" && c.ContentType() != gin.MIMEJSON {
			ownerID = c.PostForm("user_id")
		}
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "user_id is required"})
			return
		}
		if _, err := uuid.Parse(ownerID); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "user_id must be a UUID"})
			return
		}
		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// GetOwnerID 从上下文获取调用方标识
func GetOwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
