package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/singleflight"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// KeyPair 某个后端版本的只读密钥句柄
type KeyPair struct {
	Descriptor types.BackendDescriptor
	PK         proofgen.ProvingKey
	VK         proofgen.VerifyingKey
	// CircuitHash 验证密钥序列化后的 keccak256
	CircuitHash common.Hash
	// ProvingKeySize 证明密钥序列化后的字节数
	ProvingKeySize int
}

// KeyStore 后端密钥存储
//
// 🎯 **职责**：
// - 每个 (backend_id, version) 只执行一次 setup，并发加载合并为一次
// - 配置了 BlobStore 时持久化密钥，重启后直接加载
// - 加载后的密钥只读共享给所有 worker
type KeyStore struct {
	store  storage.BlobStore
	params proofgen.SetupParams
	logger log.Logger

	group singleflight.Group
	mu    sync.RWMutex
	keys  map[string]*KeyPair
}

// NewKeyStore 创建密钥存储，store 可为 nil（仅内存）
func NewKeyStore(store storage.BlobStore, params proofgen.SetupParams, logger log.Logger) *KeyStore {
	return &KeyStore{
		store:  store,
		params: params,
		logger: logger.With("module", "backend"),
		keys:   make(map[string]*KeyPair),
	}
}

func keyID(desc types.BackendDescriptor) string {
	return desc.String()
}

func keyPrefix(desc types.BackendDescriptor) string {
	return fmt.Sprintf("keys/%s/v%d/", desc.ID, desc.Version)
}

// Load 获取后端当前版本的密钥，必要时加载或执行 setup
func (k *KeyStore) Load(ctx context.Context, plugin proofgen.BackendPlugin) (*KeyPair, error) {
	desc := plugin.Descriptor()
	id := keyID(desc)

	k.mu.RLock()
	pair, ok := k.keys[id]
	k.mu.RUnlock()
	if ok {
		return pair, nil
	}

	v, err, shared := k.group.Do(id, func() (interface{}, error) {
		k.mu.RLock()
		pair, ok := k.keys[id]
		k.mu.RUnlock()
		if ok {
			return pair, nil
		}

		pair, err := k.loadPersisted(ctx, plugin)
		if err != nil {
			k.logger.Warnf("加载持久化密钥失败，重新 setup: backend=%s err=%v", desc, err)
		}
		if pair == nil {
			if pair, err = k.setup(ctx, plugin); err != nil {
				return nil, err
			}
		}

		k.mu.Lock()
		k.keys[id] = pair
		k.mu.Unlock()
		return pair, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		k.logger.Debugf("密钥加载已合并: backend=%s", desc)
	}
	return v.(*KeyPair), nil
}

func (k *KeyStore) setup(ctx context.Context, plugin proofgen.BackendPlugin) (*KeyPair, error) {
	desc := plugin.Descriptor()
	start := time.Now()

	pk, vk, err := plugin.Setup(ctx, k.params)
	if err != nil {
		return nil, fmt.Errorf("setup %s: %w", desc, err)
	}
	vkBytes, err := plugin.SerializeVerifyingKey(vk)
	if err != nil {
		return nil, fmt.Errorf("serialize verifying key %s: %w", desc, err)
	}
	pkBytes, err := plugin.SerializeProvingKey(pk)
	if err != nil {
		return nil, fmt.Errorf("serialize proving key %s: %w", desc, err)
	}

	pair := &KeyPair{
		Descriptor:     desc,
		PK:             pk,
		VK:             vk,
		CircuitHash:    crypto.Keccak256Hash(vkBytes),
		ProvingKeySize: len(pkBytes),
	}
	k.logger.Infof("后端 setup 完成: backend=%s circuit=%s 耗时=%v", desc, pair.CircuitHash.TerminalString(), time.Since(start))

	if k.store != nil {
		if err := k.persist(ctx, pair.Descriptor, pkBytes, vkBytes); err != nil {
			k.logger.Warnf("持久化密钥失败: backend=%s err=%v", desc, err)
		}
	}
	return pair, nil
}

func (k *KeyStore) persist(ctx context.Context, desc types.BackendDescriptor, pkBytes, vkBytes []byte) error {
	prefix := keyPrefix(desc)
	if err := k.store.Set(ctx, []byte(prefix+"pk"), pkBytes); err != nil {
		return err
	}
	return k.store.Set(ctx, []byte(prefix+"vk"), vkBytes)
}

// loadPersisted 从 BlobStore 恢复密钥，不存在时返回 (nil, nil)
func (k *KeyStore) loadPersisted(ctx context.Context, plugin proofgen.BackendPlugin) (*KeyPair, error) {
	if k.store == nil {
		return nil, nil
	}
	desc := plugin.Descriptor()
	prefix := keyPrefix(desc)

	vkBytes, err := k.store.Get(ctx, []byte(prefix+"vk"))
	if err != nil || vkBytes == nil {
		return nil, err
	}
	pkBytes, err := k.store.Get(ctx, []byte(prefix+"pk"))
	if err != nil || pkBytes == nil {
		return nil, err
	}

	vk, err := plugin.DeserializeVerifyingKey(vkBytes)
	if err != nil {
		return nil, err
	}
	pk, err := plugin.DeserializeProvingKey(pkBytes)
	if err != nil {
		return nil, err
	}
	pair := &KeyPair{
		Descriptor:     desc,
		PK:             pk,
		VK:             vk,
		CircuitHash:    crypto.Keccak256Hash(vkBytes),
		ProvingKeySize: len(pkBytes),
	}
	k.logger.Infof("已加载持久化密钥: backend=%s circuit=%s", desc, pair.CircuitHash.TerminalString())
	return pair, nil
}

// Loaded 指定版本的密钥是否已在内存中
func (k *KeyStore) Loaded(desc types.BackendDescriptor) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[keyID(desc)]
	return ok
}

// Drop 丢弃指定版本的密钥（内存与持久化）
func (k *KeyStore) Drop(ctx context.Context, desc types.BackendDescriptor) {
	k.mu.Lock()
	delete(k.keys, keyID(desc))
	k.mu.Unlock()
	k.group.Forget(keyID(desc))

	if k.store != nil {
		if _, err := k.store.DeletePrefix(ctx, []byte(keyPrefix(desc))); err != nil {
			k.logger.Warnf("删除持久化密钥失败: backend=%s err=%v", desc, err)
		}
	}
}

// Purge 释放所有内存中的密钥，返回释放数量
func (k *KeyStore) Purge() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := len(k.keys)
	k.keys = make(map[string]*KeyPair)
	return n
}
