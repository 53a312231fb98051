package witness

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/weisyn/zkattest/pkg/types"
)

// maxEventNesting 事件负载允许的最大嵌套层数
const maxEventNesting = 16

// CanonicalEvent 校验事件描述并返回其规范编码
//
// Payload 必须是单个规范 RLP 列表（最小长度前缀、无尾随字节）。
func CanonicalEvent(event types.EventDescriptor) ([]byte, error) {
	const op = "witness.event"

	if event.Schema == "" {
		return nil, invalidEvidence(op, ErrNonCanonicalEvent, "empty schema")
	}
	kind, content, rest, err := rlp.Split(event.Payload)
	if err != nil {
		return nil, invalidEvidence(op, ErrNonCanonicalEvent, "%v", err)
	}
	if kind != rlp.List {
		return nil, invalidEvidence(op, ErrNonCanonicalEvent, "payload is not a list")
	}
	if len(rest) != 0 {
		return nil, invalidEvidence(op, ErrNonCanonicalEvent, "%d trailing bytes", len(rest))
	}
	if err := checkCanonicalList(content, 1); err != nil {
		return nil, invalidEvidence(op, ErrNonCanonicalEvent, "%v", err)
	}

	enc, err := event.CanonicalEncoding()
	if err != nil {
		return nil, invalidEvidence(op, ErrNonCanonicalEvent, "%v", err)
	}
	return enc, nil
}

// checkCanonicalList 递归校验列表元素，rlp.Split 会拒绝非最小长度前缀
func checkCanonicalList(content []byte, depth int) error {
	if depth > maxEventNesting {
		return fmt.Errorf("nesting deeper than %d", maxEventNesting)
	}
	for len(content) > 0 {
		kind, inner, rest, err := rlp.Split(content)
		if err != nil {
			return err
		}
		if kind == rlp.List {
			if err := checkCanonicalList(inner, depth+1); err != nil {
				return err
			}
		}
		content = rest
	}
	return nil
}
