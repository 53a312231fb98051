package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/types"
)

// Bundle 证据文件内容
type Bundle struct {
	Anchor   types.Anchor          `json:"anchor"`
	Event    types.EventDescriptor `json:"event"`
	Evidence *types.Evidence       `json:"evidence"`
}

// LoadBundle 读取单个证据文件
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if b.Evidence == nil {
		return nil, fmt.Errorf("%s: missing evidence", path)
	}
	return &b, nil
}

// WriteBundle 写出证据文件
func WriteBundle(path string, b *Bundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// File 目录证据源
//
// 目录下所有 *.json 证据文件在创建时加载；查询未命中时重新扫描一次，
// 运行期间放入的新文件无需重启即可生效。
type File struct {
	dir    string
	logger log.Logger
	static *Static

	scanMu sync.Mutex
}

// NewFile 创建目录证据源
func NewFile(dir string, logger log.Logger) (*File, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("evidence dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("evidence dir %s is not a directory", dir)
	}
	f := &File{
		dir:    dir,
		logger: logger.With("module", "collector"),
		static: NewStatic(),
	}
	if _, err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload 重新扫描目录，返回成功加载的文件数
func (f *File) Reload() (int, error) {
	f.scanMu.Lock()
	defer f.scanMu.Unlock()

	loaded := 0
	err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		b, err := LoadBundle(path)
		if err != nil {
			f.logger.Warnf("跳过无效证据文件: %v", err)
			return nil
		}
		if err := f.static.Add(b.Anchor, b.Event, b.Evidence); err != nil {
			f.logger.Warnf("跳过无效证据文件: path=%s err=%v", path, err)
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("scan evidence dir: %w", err)
	}
	f.logger.Debugf("证据目录已扫描: dir=%s files=%d", f.dir, loaded)
	return loaded, nil
}

// Fetch 查询证据，未命中时重新扫描目录
func (f *File) Fetch(ctx context.Context, anchor types.Anchor, event types.EventDescriptor) (*types.Evidence, error) {
	evidence, err := f.static.Fetch(ctx, anchor, event)
	if err == nil || !errors.Is(err, types.ErrNotFound) {
		return evidence, err
	}
	if _, rerr := f.Reload(); rerr != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, rerr)
	}
	return f.static.Fetch(ctx, anchor, event)
}
