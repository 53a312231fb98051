package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 证明流水线对外暴露的错误类别
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "InvalidRequest"
	KindInvalidEvidence   ErrorKind = "InvalidEvidence"
	KindUnsupportedSchema ErrorKind = "UnsupportedSchema"
	KindSourceUnavailable ErrorKind = "SourceUnavailable"
	KindResourceExhausted ErrorKind = "ResourceExhausted"
	KindTimeout           ErrorKind = "Timeout"
	KindDeadlineExceeded  ErrorKind = "DeadlineExceeded"
	KindProverFault       ErrorKind = "ProverFault"
	KindCacheCorruption   ErrorKind = "CacheCorruption"
	KindCancelled         ErrorKind = "Cancelled"
)

// ============================================================================
// 类别哨兵错误
// ============================================================================

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidEvidence   = errors.New("invalid evidence")
	ErrUnsupportedSchema = errors.New("unsupported witness schema")
	ErrSourceUnavailable = errors.New("evidence source unavailable")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrTimeout           = errors.New("stage timeout")
	ErrDeadlineExceeded  = errors.New("request deadline exceeded")
	ErrProverFault       = errors.New("prover fault")
	ErrCacheCorruption   = errors.New("cache corruption")
	ErrCancelled         = errors.New("request cancelled")

	// ErrNotFound 证据采集方找不到对应数据
	ErrNotFound = errors.New("evidence not found")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidRequest:    ErrInvalidRequest,
	KindInvalidEvidence:   ErrInvalidEvidence,
	KindUnsupportedSchema: ErrUnsupportedSchema,
	KindSourceUnavailable: ErrSourceUnavailable,
	KindResourceExhausted: ErrResourceExhausted,
	KindTimeout:           ErrTimeout,
	KindDeadlineExceeded:  ErrDeadlineExceeded,
	KindProverFault:       ErrProverFault,
	KindCacheCorruption:   ErrCacheCorruption,
	KindCancelled:         ErrCancelled,
}

// Sentinel 返回类别对应的哨兵错误
func (k ErrorKind) Sentinel() error {
	return kindSentinels[k]
}

// ProofError 带类别的结构化错误
//
// errors.Is(err, ErrProverFault) 等判断按类别匹配；Unwrap 返回底层原因。
type ProofError struct {
	Kind      ErrorKind
	Op        string
	JobID     string
	BackendID string
	Err       error
}

// NewProofError 构造结构化错误
func NewProofError(kind ErrorKind, op string, err error) *ProofError {
	return &ProofError{Kind: kind, Op: op, Err: err}
}

// Errorf 以格式化原因构造结构化错误
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) *ProofError {
	return &ProofError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *ProofError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.JobID != "" {
		b.WriteString(" job=")
		b.WriteString(e.JobID)
	}
	if e.BackendID != "" {
		b.WriteString(" backend=")
		b.WriteString(e.BackendID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap 返回底层原因
func (e *ProofError) Unwrap() error { return e.Err }

// Is 按类别匹配哨兵错误
func (e *ProofError) Is(target error) bool {
	if s, ok := kindSentinels[e.Kind]; ok && s == target {
		return true
	}
	return false
}

// WithJob 返回附带任务上下文的副本
func (e *ProofError) WithJob(jobID, backendID string) *ProofError {
	c := *e
	if c.JobID == "" {
		c.JobID = jobID
	}
	if c.BackendID == "" {
		c.BackendID = backendID
	}
	return &c
}

// KindOf 提取错误类别，无法识别时返回空串
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProofError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}
