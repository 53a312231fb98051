package types

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/weisyn/zkattest/pkg/types"
)

// ProblemDetails 错误响应结构（基于 RFC7807 扩展）
type ProblemDetails struct {
	// RFC7807 标准字段
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// 扩展字段
	Code        string                 `json:"code"`
	Layer       string                 `json:"layer"`
	UserMessage string                 `json:"userMessage"`
	Details     map[string]interface{} `json:"details,omitempty"`
	TraceID     string                 `json:"traceId"`
	Timestamp   string                 `json:"timestamp"`
}

// Error 实现 error 接口
func (p *ProblemDetails) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.UserMessage
}

// WriteJSON 将 Problem Details 写入 HTTP 响应
func (p *ProblemDetails) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewProblemDetails 创建新的 Problem Details
func NewProblemDetails(
	code string,
	layer string,
	userMessage string,
	detail string,
	status int,
	details map[string]interface{},
) *ProblemDetails {
	if details == nil {
		details = make(map[string]interface{})
	}
	return &ProblemDetails{
		Title:       http.StatusText(status),
		Code:        code,
		Layer:       layer,
		UserMessage: userMessage,
		Detail:      detail,
		Status:      status,
		Details:     details,
		TraceID:     uuid.New().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// IsProblemDetails 检查错误是否为 Problem Details
func IsProblemDetails(err error) (*ProblemDetails, bool) {
	var pd *ProblemDetails
	if errors.As(err, &pd) {
		return pd, true
	}
	return nil, false
}

// 错误码常量
const (
	CodeInvalidRequest    = "ZK_INVALID_REQUEST"
	CodeInvalidEvidence   = "ZK_INVALID_EVIDENCE"
	CodeUnsupportedSchema = "ZK_UNSUPPORTED_SCHEMA"
	CodeSourceUnavailable = "ZK_SOURCE_UNAVAILABLE"
	CodeResourceExhausted = "ZK_RESOURCE_EXHAUSTED"
	CodeTimeout           = "ZK_TIMEOUT"
	CodeDeadlineExceeded  = "ZK_DEADLINE_EXCEEDED"
	CodeProverFault       = "ZK_PROVER_FAULT"
	CodeCacheCorruption   = "ZK_CACHE_CORRUPTION"
	CodeCancelled         = "ZK_CANCELLED"
	CodeNotFound          = "ZK_NOT_FOUND"
	CodeTooLateToCancel   = "ZK_TOO_LATE_TO_CANCEL"

	CodeCommonValidationError    = "COMMON_VALIDATION_ERROR"
	CodeCommonInternalError      = "COMMON_INTERNAL_ERROR"
	CodeCommonTimeout            = "COMMON_TIMEOUT"
	CodeCommonRateLimited        = "COMMON_RATE_LIMITED"
	CodeCommonServiceUnavailable = "COMMON_SERVICE_UNAVAILABLE"
)

// Layer 常量
const (
	LayerProofService = "proof-service"
	LayerAPI          = "api"
)

type kindMapping struct {
	code    string
	status  int
	message string
}

var kindMappings = map[types.ErrorKind]kindMapping{
	types.KindInvalidRequest:    {CodeInvalidRequest, http.StatusBadRequest, "请求参数无效"},
	types.KindInvalidEvidence:   {CodeInvalidEvidence, http.StatusUnprocessableEntity, "证据校验失败"},
	types.KindUnsupportedSchema: {CodeUnsupportedSchema, http.StatusUnprocessableEntity, "后端不支持该见证结构版本"},
	types.KindSourceUnavailable: {CodeSourceUnavailable, http.StatusBadGateway, "证据源不可用"},
	types.KindResourceExhausted: {CodeResourceExhausted, http.StatusServiceUnavailable, "服务繁忙，请稍后重试"},
	types.KindTimeout:           {CodeTimeout, http.StatusGatewayTimeout, "处理超时"},
	types.KindDeadlineExceeded:  {CodeDeadlineExceeded, http.StatusGatewayTimeout, "已超过请求截止时间"},
	types.KindProverFault:       {CodeProverFault, http.StatusInternalServerError, "证明后端产生了无效证明"},
	types.KindCacheCorruption:   {CodeCacheCorruption, http.StatusInternalServerError, "缓存数据损坏"},
	types.KindCancelled:         {CodeCancelled, http.StatusConflict, "请求已取消"},
}

// StatusForKind 错误类别对应的 HTTP 状态码
func StatusForKind(kind types.ErrorKind) int {
	if m, ok := kindMappings[kind]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// FromError 将流水线错误转换为 Problem Details
//
// 已经是 Problem Details 的错误原样返回；无法识别类别的错误视为内部错误。
func FromError(err error) *ProblemDetails {
	if pd, ok := IsProblemDetails(err); ok {
		return pd
	}
	kind := types.KindOf(err)
	m, ok := kindMappings[kind]
	if !ok {
		return NewProblemDetails(CodeCommonInternalError, LayerProofService,
			"内部错误", err.Error(), http.StatusInternalServerError, nil)
	}
	details := map[string]interface{}{"kind": string(kind)}
	var pe *types.ProofError
	if errors.As(err, &pe) {
		if pe.JobID != "" {
			details["job_id"] = pe.JobID
		}
		if pe.BackendID != "" {
			details["backend_id"] = pe.BackendID
		}
	}
	return NewProblemDetails(m.code, LayerProofService, m.message, err.Error(), m.status, details)
}
