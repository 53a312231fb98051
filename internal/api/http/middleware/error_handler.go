package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apitypes "github.com/weisyn/zkattest/internal/api/types"
)

// ErrorHandler 错误处理中间件
//
// 处理器通过 c.Error 上报错误，这里统一转换为 Problem Details 响应。
// 流水线错误按类别映射状态码，其余错误视为内部错误。
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		problem := apitypes.FromError(err)
		problem.Instance = c.Request.URL.Path

		fields := []zap.Field{
			zap.String("code", problem.Code),
			zap.String("traceId", problem.TraceID),
			zap.String("request_id", GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		}
		if problem.Status >= http.StatusInternalServerError {
			logger.Error("HTTP error", fields...)
		} else {
			logger.Debug("HTTP error", fields...)
		}
		WriteProblemDetails(c, problem)
	}
}

// Recovery 捕获处理器 panic 并返回 Problem Details
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("HTTP handler panic",
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stack"))
				WriteError(c, apitypes.CodeCommonInternalError, "服务器内部错误，请稍后重试",
					fmt.Sprintf("panic: %v", r), http.StatusInternalServerError, nil)
			}
		}()
		c.Next()
	}
}

// WriteProblemDetails 写入 Problem Details 响应
func WriteProblemDetails(c *gin.Context, problem *apitypes.ProblemDetails) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problem.Status, problem)
}

// WriteError 写入错误响应（自动转换为 Problem Details）
func WriteError(c *gin.Context, code string, userMessage string, detail string, status int, details map[string]interface{}) {
	problem := apitypes.NewProblemDetails(code, apitypes.LayerAPI, userMessage, detail, status, details)
	problem.Instance = c.Request.URL.Path
	WriteProblemDetails(c, problem)
}
