package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
)

// CacheHandler 证明缓存管理端点
type CacheHandler struct {
	logger *zap.Logger
	cache  proofgen.ProofCache
}

// NewCacheHandler 创建缓存管理处理器
func NewCacheHandler(logger *zap.Logger, cache proofgen.ProofCache) *CacheHandler {
	return &CacheHandler{logger: logger, cache: cache}
}

// RegisterRoutes 注册路由
func (h *CacheHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/cache/stats", h.Stats)
	r.DELETE("/cache", h.Clear)
}

// Stats 缓存统计
func (h *CacheHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, success(c, h.cache.Stats()))
}

// Clear 清空缓存；?backend=<id> 时只丢弃该后端非当前版本的条目
func (h *CacheHandler) Clear(c *gin.Context) {
	if backendID := c.Query("backend"); backendID != "" {
		n := h.cache.Invalidate(c.Request.Context(), backendID)
		h.logger.Info("已丢弃后端过期缓存", zap.String("backend_id", backendID), zap.Int("entries", n))
		c.JSON(http.StatusOK, success(c, gin.H{"backend_id": backendID, "invalidated": n}))
		return
	}
	if err := h.cache.Purge(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	h.logger.Info("缓存已清空")
	c.JSON(http.StatusOK, success(c, gin.H{"purged": true}))
}
