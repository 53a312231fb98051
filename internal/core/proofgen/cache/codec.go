package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"

	"github.com/weisyn/zkattest/pkg/types"
)

// errChecksum 持久化条目校验和不一致
var errChecksum = errors.New("checksum mismatch")

// persistedKey 持久化键：proof/<backend_id>/v<version>/<digest hex>
func persistedKey(backendID string, version uint32, digest common.Hash) []byte {
	return []byte(fmt.Sprintf("proof/%s/v%d/%x", backendID, version, digest[:]))
}

// backendPrefix 某后端所有持久化条目的前缀
func backendPrefix(backendID string) []byte {
	return []byte(fmt.Sprintf("proof/%s/", backendID))
}

// versionPrefix 某后端某版本的持久化前缀
func versionPrefix(backendID string, version uint32) string {
	return fmt.Sprintf("proof/%s/v%d/", backendID, version)
}

// artifactRecord 持久化的证明结果，只含 RLP 可编码的无符号字段
type artifactRecord struct {
	ProofBytes           []byte
	PublicInputs         []byte
	BackendID            string
	BackendVersion       uint32
	WitnessSchemaVersion uint32
	WitnessDigest        common.Hash
	GeneratedAtUnixNano  uint64
	GenerationTimeNanos  uint64
	ProofSize            uint64
	Attempts             uint64
	CircuitHash          common.Hash
	AllocatedBytes       uint64
}

// envelope 校验和 + 记录的 RLP 编码
type envelope struct {
	Checksum common.Hash
	Record   []byte
}

func toRecord(a *types.ProofArtifact) *artifactRecord {
	return &artifactRecord{
		ProofBytes:           a.ProofBytes,
		PublicInputs:         a.PublicInputs,
		BackendID:            a.Backend.ID,
		BackendVersion:       a.Backend.Version,
		WitnessSchemaVersion: a.Backend.WitnessSchemaVersion,
		WitnessDigest:        a.WitnessDigest,
		GeneratedAtUnixNano:  uint64(a.Metadata.GeneratedAt.UnixNano()),
		GenerationTimeNanos:  uint64(a.Metadata.GenerationTime),
		ProofSize:            uint64(a.Metadata.ProofSize),
		Attempts:             uint64(a.Metadata.Attempts),
		CircuitHash:          a.Metadata.CircuitHash,
		AllocatedBytes:       a.Metadata.AllocatedBytes,
	}
}

func (r *artifactRecord) artifact() *types.ProofArtifact {
	return &types.ProofArtifact{
		ProofBytes:   r.ProofBytes,
		PublicInputs: r.PublicInputs,
		Backend: types.BackendDescriptor{
			ID:                   r.BackendID,
			Version:              r.BackendVersion,
			WitnessSchemaVersion: r.WitnessSchemaVersion,
		},
		WitnessDigest: r.WitnessDigest,
		Metadata: types.ArtifactMetadata{
			GeneratedAt:    time.Unix(0, int64(r.GeneratedAtUnixNano)).UTC(),
			GenerationTime: time.Duration(r.GenerationTimeNanos),
			ProofSize:      int(r.ProofSize),
			Attempts:       int(r.Attempts),
			CircuitHash:    r.CircuitHash,
			AllocatedBytes: r.AllocatedBytes,
		},
	}
}

// encodeArtifact snappy(rlp(envelope{keccak(record), record}))
func encodeArtifact(a *types.ProofArtifact) ([]byte, error) {
	record, err := rlp.EncodeToBytes(toRecord(a))
	if err != nil {
		return nil, fmt.Errorf("encode artifact record: %w", err)
	}
	env, err := rlp.EncodeToBytes(&envelope{Checksum: crypto.Keccak256Hash(record), Record: record})
	if err != nil {
		return nil, fmt.Errorf("encode artifact envelope: %w", err)
	}
	return snappy.Encode(nil, env), nil
}

// decodeArtifact 解码并校验持久化条目，任何不一致都视为损坏
func decodeArtifact(blob []byte) (*types.ProofArtifact, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	var env envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if crypto.Keccak256Hash(env.Record) != env.Checksum {
		return nil, errChecksum
	}
	var record artifactRecord
	if err := rlp.DecodeBytes(env.Record, &record); err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return record.artifact(), nil
}
