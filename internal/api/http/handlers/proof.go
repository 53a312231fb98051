// Package handlers provides HTTP API handlers for the proof service
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/weisyn/zkattest/internal/api/http/middleware"
	httptypes "github.com/weisyn/zkattest/internal/api/http/types"
	apitypes "github.com/weisyn/zkattest/internal/api/types"
	"github.com/weisyn/zkattest/internal/core/proofgen/orchestrator"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// ResultLookup 按请求 ID 查询已投递的结果，不存在时返回 nil
type ResultLookup interface {
	Lookup(ctx context.Context, requestID string) (*types.ProofArtifact, error)
}

// ProofHandler 证明请求端点
//
// 路由：
//   - POST   /proofs             提交，?wait=true 时同步等待结果
//   - GET    /proofs/:id         请求状态
//   - GET    /proofs/:id/result  等待并返回结果
//   - DELETE /proofs/:id         取消
type ProofHandler struct {
	logger      *zap.Logger
	service     proofgen.ProofService
	results     []ResultLookup
	waitTimeout time.Duration
}

// NewProofHandler 创建证明请求处理器
func NewProofHandler(
	logger *zap.Logger,
	service proofgen.ProofService,
	waitTimeout time.Duration,
	results ...ResultLookup,
) *ProofHandler {
	return &ProofHandler{
		logger:      logger,
		service:     service,
		results:     results,
		waitTimeout: waitTimeout,
	}
}

// RegisterRoutes 注册路由
func (h *ProofHandler) RegisterRoutes(r *gin.RouterGroup) {
	proofs := r.Group("/proofs")
	proofs.POST("", h.Submit)
	proofs.GET("/:id", h.GetStatus)
	proofs.GET("/:id/result", h.GetResult)
	proofs.DELETE("/:id", h.Cancel)
}

// Submit 提交证明请求
//
// 请求体可内嵌证据，内嵌证据只随该请求进入见证构建，不在服务端留存。
func (h *ProofHandler) Submit(c *gin.Context) {
	var req types.ProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteError(c, apitypes.CodeInvalidRequest, "请求体格式错误",
			err.Error(), http.StatusBadRequest, nil)
		return
	}

	id, err := h.service.Submit(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Set(middleware.ProofRequestIDKey, id)

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		h.respondResult(c, id)
		return
	}

	base := c.FullPath()
	c.JSON(http.StatusAccepted, success(c, httptypes.ProofAccepted{
		RequestID: id,
		StatusURL: fmt.Sprintf("%s/%s", base, id),
		ResultURL: fmt.Sprintf("%s/%s/result", base, id),
	}))
}

// GetStatus 查询请求状态
func (h *ProofHandler) GetStatus(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ProofRequestIDKey, id)

	snap, err := h.service.Status(id)
	if err == nil {
		c.JSON(http.StatusOK, success(c, snap))
		return
	}
	if !errors.Is(err, orchestrator.ErrRequestNotFound) {
		_ = c.Error(err)
		return
	}

	// 请求记录已清理，但结果仍可能保存在结果存储中
	if a := h.lookup(c.Request.Context(), id); a != nil {
		c.JSON(http.StatusOK, success(c, &types.JobSnapshot{
			RequestID:     id,
			BackendID:     a.Backend.ID,
			WitnessDigest: a.WitnessDigest,
			State:         types.JobCompleted,
			Attempts:      a.Metadata.Attempts,
			UpdatedAt:     a.Metadata.GeneratedAt,
		}))
		return
	}
	h.notFound(c, id)
}

// GetResult 等待请求结束并返回结果
//
// ?timeout=30s 可缩短等待时间，但不超过服务端上限。
func (h *ProofHandler) GetResult(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ProofRequestIDKey, id)
	h.respondResult(c, id)
}

// Cancel 取消请求
func (h *ProofHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ProofRequestIDKey, id)

	err := h.service.Cancel(id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, success(c, httptypes.CancelResult{RequestID: id, Cancelled: true}))
	case errors.Is(err, orchestrator.ErrRequestNotFound):
		h.notFound(c, id)
	case errors.Is(err, orchestrator.ErrTooLateToCancel):
		middleware.WriteError(c, apitypes.CodeTooLateToCancel, "证明已开始，无法取消",
			err.Error(), http.StatusConflict, map[string]interface{}{"request_id": id})
	case types.KindOf(err) == types.KindInvalidRequest:
		// 请求已结束
		middleware.WriteError(c, apitypes.CodeInvalidRequest, "请求已结束，无法取消",
			err.Error(), http.StatusConflict, map[string]interface{}{"request_id": id})
	default:
		_ = c.Error(err)
	}
}

// respondResult 在等待上限内等待结果
func (h *ProofHandler) respondResult(c *gin.Context, id string) {
	timeout := h.waitTimeout
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			middleware.WriteError(c, apitypes.CodeInvalidRequest, "timeout 参数无效",
				fmt.Sprintf("invalid timeout %q", raw), http.StatusBadRequest, nil)
			return
		}
		if timeout <= 0 || d < timeout {
			timeout = d
		}
	}

	ctx := c.Request.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	artifact, err := h.service.Wait(ctx, id)
	if err != nil {
		if !errors.Is(err, orchestrator.ErrRequestNotFound) {
			_ = c.Error(err)
			return
		}
		artifact = h.lookup(c.Request.Context(), id)
		if artifact == nil {
			h.notFound(c, id)
			return
		}
	}
	c.JSON(http.StatusOK, success(c, httptypes.ProofResult{RequestID: id, Artifact: artifact}))
}

func (h *ProofHandler) lookup(ctx context.Context, id string) *types.ProofArtifact {
	for _, r := range h.results {
		a, err := r.Lookup(ctx, id)
		if err != nil {
			h.logger.Warn("查询结果存储失败", zap.String("request_id", id), zap.Error(err))
			continue
		}
		if a != nil {
			return a
		}
	}
	return nil
}

func (h *ProofHandler) notFound(c *gin.Context, id string) {
	middleware.WriteError(c, apitypes.CodeNotFound, "请求不存在或已过期",
		fmt.Sprintf("request %s not found", id), http.StatusNotFound,
		map[string]interface{}{"request_id": id})
}
