package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weisyn/zkattest/internal/api/http/middleware"
	apitypes "github.com/weisyn/zkattest/internal/api/types"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// BackendHandler 证明后端查询端点
type BackendHandler struct {
	registry proofgen.BackendRegistry
}

// NewBackendHandler 创建后端查询处理器
func NewBackendHandler(registry proofgen.BackendRegistry) *BackendHandler {
	return &BackendHandler{registry: registry}
}

// RegisterRoutes 注册路由
func (h *BackendHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/backends", h.List)
	r.GET("/backends/:id", h.Get)
}

// List 列出所有后端及其运行信息
func (h *BackendHandler) List(c *gin.Context) {
	descs := h.registry.List()
	infos := make([]*types.BackendInfo, 0, len(descs))
	for _, d := range descs {
		info, err := h.registry.Info(c.Request.Context(), d.ID)
		if err != nil {
			// 列举期间被移除
			continue
		}
		infos = append(infos, info)
	}
	c.JSON(http.StatusOK, success(c, infos))
}

// Get 查询单个后端
func (h *BackendHandler) Get(c *gin.Context) {
	id := c.Param("id")
	info, err := h.registry.Info(c.Request.Context(), id)
	if errors.Is(err, backend.ErrBackendNotFound) {
		middleware.WriteError(c, apitypes.CodeNotFound, "后端未注册",
			fmt.Sprintf("backend %s not registered", id), http.StatusNotFound,
			map[string]interface{}{"backend_id": id})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, success(c, info))
}
