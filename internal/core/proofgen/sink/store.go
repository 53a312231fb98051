package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

const resultPrefix = "result/"

// Store 将结果以 JSON 写入 BlobStore：result/<request_id>
//
// 请求记录被编排器清理后，结果仍可按请求 ID 查询。
type Store struct {
	store storage.BlobStore
}

var _ proofgen.ResultSink = (*Store)(nil)

// NewStore 创建存储投递
func NewStore(store storage.BlobStore) *Store {
	return &Store{store: store}
}

func (s *Store) Deliver(ctx context.Context, requestID string, artifact *types.ProofArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := s.store.Set(ctx, []byte(resultPrefix+requestID), data); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// Lookup 读取某请求的结果，不存在时返回 nil
func (s *Store) Lookup(ctx context.Context, requestID string) (*types.ProofArtifact, error) {
	data, err := s.store.Get(ctx, []byte(resultPrefix+requestID))
	if err != nil || data == nil {
		return nil, err
	}
	var a types.ProofArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}
