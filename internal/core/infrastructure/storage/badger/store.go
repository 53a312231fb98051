// Package badger 提供基于BadgerDB的存储实现
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	badgerconfig "github.com/weisyn/zkattest/internal/config/storage/badger"
	log "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	interfaces "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	"go.uber.org/zap"
)

// ErrClosing 存储正在关闭
var ErrClosing = errors.New("badger store is closing")

// Store 实现 BlobStore 接口
type Store struct {
	db         *badgerdb.DB
	logger     log.Logger
	cancelFunc context.CancelFunc

	// Close 期间阻断新的写入并等待 in-flight 写完成
	closing int32
	writeWg sync.WaitGroup
}

var _ interfaces.BlobStore = (*Store)(nil)

// New 打开BadgerDB并启动维护任务
func New(config *badgerconfig.BadgerOptions, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = nopLogger{}
	}

	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("badger数据目录未配置")
	}
	dataDir := config.Path
	logger.Infof("初始化BadgerDB存储，数据目录: %s", dataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("创建BadgerDB数据目录失败: %w", err)
	}

	opts := badgerdb.DefaultOptions(dataDir)
	opts.SyncWrites = config.SyncWrites
	if config.MemTableSize > 0 {
		opts.MemTableSize = config.MemTableSize
	}
	// 证明结果和密钥体积有限，压低 vlog 文件与缓存占用
	opts.ValueLogFileSize = 256 << 20
	opts.BlockCacheSize = 32 << 20
	opts.IndexCacheSize = 32 << 20
	opts.NumMemtables = 2
	opts.NumCompactors = 2
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开BadgerDB失败: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.cancelFunc = cancel
	if config.AutoCompaction {
		store.StartMaintenanceRoutines(ctx)
	}

	logger.Info("BadgerDB存储初始化完成")
	return store, nil
}

// nopLogger logger 未注入时避免 nil 指针
type nopLogger struct{}

func (nopLogger) Debug(string)                   {}
func (nopLogger) Debugf(string, ...interface{})  {}
func (nopLogger) Info(string)                    {}
func (nopLogger) Infof(string, ...interface{})   {}
func (nopLogger) Warn(string)                    {}
func (nopLogger) Warnf(string, ...interface{})   {}
func (nopLogger) Error(string)                   {}
func (nopLogger) Errorf(string, ...interface{})  {}
func (nopLogger) Fatal(string)                   {}
func (nopLogger) Fatalf(string, ...interface{})  {}
func (nopLogger) With(...interface{}) log.Logger { return nopLogger{} }
func (nopLogger) Sync() error                    { return nil }
func (nopLogger) GetZapLogger() *zap.Logger      { return zap.NewNop() }

// Close 关闭存储并释放资源
func (s *Store) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closing, 0, 1) {
		return nil
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	waitCh := make(chan struct{})
	go func() {
		s.writeWg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(30 * time.Second):
		s.logger.Warn("等待 in-flight 写事务超时（30s），继续关闭 BadgerDB")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("关闭BadgerDB失败: %w", err)
	}
	s.logger.Info("BadgerDB存储已关闭")
	return nil
}

func (s *Store) beginWrite() (func(), error) {
	if atomic.LoadInt32(&s.closing) == 1 {
		return nil, ErrClosing
	}
	s.writeWg.Add(1)
	// Add 之后再次确认，避免与 Close 交错
	if atomic.LoadInt32(&s.closing) == 1 {
		s.writeWg.Done()
		return nil, ErrClosing
	}
	return s.writeWg.Done, nil
}

// Get 获取指定键的值
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var valCopy []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger获取键失败: %w", err)
	}
	return valCopy, nil
}

// Set 设置键值对
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	done, err := s.beginWrite()
	if err != nil {
		return err
	}
	defer done()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

// SetWithTTL 设置键值对并指定过期时间，ttl 为 0 表示永不过期
func (s *Store) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Set(ctx, key, value)
	}
	done, err := s.beginWrite()
	if err != nil {
		return err
	}
	defer done()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(badgerdb.NewEntry(key, value).WithTTL(ttl))
	})
}

// Delete 删除指定键的值
func (s *Store) Delete(ctx context.Context, key []byte) error {
	done, err := s.beginWrite()
	if err != nil {
		return err
	}
	defer done()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
}

// PrefixScan 按前缀扫描键值对
func (s *Store) PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			valCopy, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(item.KeyCopy(nil))] = valCopy
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger前缀扫描失败: %w", err)
	}
	return result, nil
}

// DeletePrefix 删除指定前缀的全部键
func (s *Store) DeletePrefix(ctx context.Context, prefix []byte) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger前缀扫描失败: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	done, err := s.beginWrite()
	if err != nil {
		return 0, err
	}
	defer done()

	// WriteBatch 自动拆分过大的事务
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("badger批量删除失败: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger批量删除失败: %w", err)
	}
	return len(keys), nil
}

// badgerLogger 将BadgerDB日志转发到应用日志
type badgerLogger struct {
	logger log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}
