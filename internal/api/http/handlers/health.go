package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weisyn/zkattest/internal/api/http/middleware"
	httptypes "github.com/weisyn/zkattest/internal/api/http/types"
	"github.com/weisyn/zkattest/internal/core/proofgen/orchestrator"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// Runtime 编排器运行状态
type Runtime interface {
	Running() bool
	Stats() orchestrator.Stats
}

// HealthHandler 健康检查与运行统计端点
//
// 🏥 **Kubernetes风格健康检查**
// - /health: 完整健康报告（后端状态）
// - /health/live: 存活检查
// - /health/ready: 就绪检查，编排器运行且至少一个后端可用
type HealthHandler struct {
	startTime time.Time
	runtime   Runtime
	registry  proofgen.BackendRegistry
	cache     proofgen.ProofCache
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(runtime Runtime, registry proofgen.BackendRegistry, cache proofgen.ProofCache) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		runtime:   runtime,
		registry:  registry,
		cache:     cache,
	}
}

// HealthReport 健康报告
type HealthReport struct {
	Status   string                         `json:"status"`
	Uptime   string                         `json:"uptime"`
	Running  bool                           `json:"running"`
	Backends map[string]types.BackendHealth `json:"backends"`
}

// StatsReport 运行统计
type StatsReport struct {
	Orchestrator orchestrator.Stats  `json:"orchestrator"`
	Cache        proofgen.CacheStats `json:"cache"`
}

// RegisterRoutes 注册健康检查路由（挂在根路径）
func (h *HealthHandler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	health.GET("", h.GetHealth)
	health.GET("/live", h.GetLiveness)
	health.GET("/ready", h.GetReadiness)
}

// RegisterStatsRoutes 注册运行统计路由
func (h *HealthHandler) RegisterStatsRoutes(r *gin.RouterGroup) {
	r.GET("/stats", h.GetStats)
}

// GetHealth 完整健康报告
func (h *HealthHandler) GetHealth(c *gin.Context) {
	report := h.report(c)
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// GetLiveness 存活检查
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// GetReadiness 就绪检查
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	report := h.report(c)
	if report.Status == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// GetStats 编排器与缓存统计
func (h *HealthHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, success(c, StatsReport{
		Orchestrator: h.runtime.Stats(),
		Cache:        h.cache.Stats(),
	}))
}

func (h *HealthHandler) report(c *gin.Context) HealthReport {
	report := HealthReport{
		Uptime:   time.Since(h.startTime).Truncate(time.Second).String(),
		Running:  h.runtime.Running(),
		Backends: make(map[string]types.BackendHealth),
	}
	usable := 0
	degraded := false
	for _, d := range h.registry.List() {
		info, err := h.registry.Info(c.Request.Context(), d.ID)
		if err != nil {
			continue
		}
		report.Backends[d.ID] = info.Health
		switch info.Health {
		case types.BackendHealthy:
			usable++
		case types.BackendDegraded:
			usable++
			degraded = true
		}
	}

	switch {
	case !report.Running || usable == 0:
		report.Status = "unhealthy"
	case degraded:
		report.Status = "degraded"
	default:
		report.Status = "healthy"
	}
	return report
}

func success(c *gin.Context, data interface{}) *httptypes.SuccessResponse {
	return httptypes.NewSuccessResponse(data).WithRequestID(middleware.GetRequestID(c))
}
