package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	infralog "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
)

// Logger 访问日志中间件
type Logger struct {
	logger *zap.Logger
}

// NewLogger 创建日志中间件（使用统一日志接口的底层 zap 记录器）
func NewLogger(logger infralog.Logger) *Logger {
	zl := logger.GetZapLogger()
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{logger: zl.Named("http")}
}

// Middleware 返回Gin中间件
func (m *Logger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(ProofRequestIDKey); id != "" {
			fields = append(fields, zap.String("proof_request_id", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			m.logger.Error("HTTP request", fields...)
		case status >= 400:
			m.logger.Warn("HTTP request", fields...)
		default:
			m.logger.Info("HTTP request", fields...)
		}
	}
}

// ProofRequestIDKey 处理器把证明请求ID写入上下文，访问日志一并输出
const ProofRequestIDKey = "proof_request_id"
