// Package witness 提供证据校验与规范见证构建
package witness

import (
	"errors"
	"fmt"

	"github.com/weisyn/zkattest/pkg/types"
)

// ============================================================================
//                            证据校验错误定义
// ============================================================================

var (
	// ErrEmptyEvidence 证据为空
	ErrEmptyEvidence = errors.New("empty evidence")

	// ErrVariantMismatch 证据类型与变体字段不一致
	ErrVariantMismatch = errors.New("evidence variant mismatch")

	// ErrEvidenceTooLarge 证据超过大小上限
	ErrEvidenceTooLarge = errors.New("evidence exceeds size limit")

	// ErrMalformedPath Merkle 路径结构错误
	ErrMalformedPath = errors.New("malformed merkle path")

	// ErrPathLength 路径长度与深度不一致
	ErrPathLength = errors.New("merkle path length mismatch")

	// ErrRootMismatch 计算出的根与期望根不一致
	ErrRootMismatch = errors.New("merkle root mismatch")

	// ErrLeafMismatch 叶子与事件规范编码不一致
	ErrLeafMismatch = errors.New("leaf does not encode the claimed event")

	// ErrBrokenLinkage 区块头链接断裂
	ErrBrokenLinkage = errors.New("broken header linkage")

	// ErrAnchorMismatch 证据与锚点不一致
	ErrAnchorMismatch = errors.New("evidence does not reach anchor")

	// ErrNonCanonicalEvent 事件编码不规范
	ErrNonCanonicalEvent = errors.New("non-canonical event encoding")
)

// invalidEvidence 包装为 InvalidEvidence 类别错误
func invalidEvidence(op string, cause error, format string, args ...interface{}) error {
	if format == "" {
		return types.NewProofError(types.KindInvalidEvidence, op, cause)
	}
	return types.NewProofError(types.KindInvalidEvidence, op,
		fmt.Errorf("%w: %s", cause, fmt.Sprintf(format, args...)))
}
