// Package types provides HTTP response type definitions.
package types

import (
	"time"

	zktypes "github.com/weisyn/zkattest/pkg/types"
)

// SuccessResponse 统一成功响应格式
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *SuccessResponse {
	return &SuccessResponse{
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WithRequestID 添加请求ID
func (r *SuccessResponse) WithRequestID(requestID string) *SuccessResponse {
	r.RequestID = requestID
	return r
}

// ProofAccepted 异步提交的响应
type ProofAccepted struct {
	RequestID string `json:"request_id"`
	StatusURL string `json:"status_url"`
	ResultURL string `json:"result_url"`
}

// ProofResult 证明结果响应
type ProofResult struct {
	RequestID string                 `json:"request_id"`
	Artifact  *zktypes.ProofArtifact `json:"artifact"`
}

// CancelResult 取消结果
type CancelResult struct {
	RequestID string `json:"request_id"`
	Cancelled bool   `json:"cancelled"`
}
