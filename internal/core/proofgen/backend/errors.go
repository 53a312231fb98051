// Package backend 提供后端注册表、密钥存储与后端错误分类
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/weisyn/zkattest/pkg/types"
)

// ============================================================================
//                            后端错误分类
// ============================================================================

var (
	// ErrTransient 临时性故障，可重试
	ErrTransient = errors.New("transient backend failure")

	// ErrResourceAllocation 资源分配失败（内存、SRS 过小等），可重试
	ErrResourceAllocation = errors.New("backend resource allocation failed")

	// ErrWitnessShape 后端拒绝见证结构，不可重试
	ErrWitnessShape = errors.New("witness shape rejected by backend")

	// ErrDecode 证明/密钥/公开输入无法解码，不可重试
	ErrDecode = errors.New("backend decode failure")

	// ErrBackendNotFound 后端未注册
	ErrBackendNotFound = errors.New("backend not registered")

	// ErrBackendExists 后端已注册
	ErrBackendExists = errors.New("backend already registered")

	// ErrVersionNotIncreasing 升级版本未递增
	ErrVersionNotIncreasing = errors.New("backend version must increase")
)

// IsRetriable 判断证明阶段错误是否可重试
//
// 阶段超时、临时故障、资源分配失败可重试；解码与见证结构错误不可重试。
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDecode) || errors.Is(err, ErrWitnessShape) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrResourceAllocation) ||
		errors.Is(err, types.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// WrapDecodeError 包装解码错误
func WrapDecodeError(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, what, err)
}

// WrapShapeError 包装见证结构错误
func WrapShapeError(backendID string, err error) error {
	return fmt.Errorf("%w: backend=%s, cause=%v", ErrWitnessShape, backendID, err)
}
