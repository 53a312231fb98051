package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	// maxRequestIDLength 客户端传入的追踪ID过长时重新生成
	maxRequestIDLength = 128
)

// RequestID 请求ID中间件
// 为每个 HTTP 请求生成唯一追踪ID；证明请求的 ID 由编排器单独分配
type RequestID struct{}

// NewRequestID 创建请求ID中间件
func NewRequestID() *RequestID {
	return &RequestID{}
}

// Middleware 返回Gin中间件
func (m *RequestID) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID 从上下文获取追踪ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
