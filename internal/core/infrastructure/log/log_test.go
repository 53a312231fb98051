package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logconfig "github.com/weisyn/zkattest/internal/config/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================================================
// 路由 Core
// ============================================================================

func newBufferCore(buf *bytes.Buffer) zapcore.Core {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "message", LevelKey: "level"})
	return zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
}

func TestModuleRoutingCore_RoutesByModuleField(t *testing.T) {
	var sysBuf, proverBuf bytes.Buffer
	core := &moduleRoutingCore{systemCore: newBufferCore(&sysBuf), proverCore: newBufferCore(&proverBuf)}
	entry := zapcore.Entry{Message: "hello", Level: zapcore.InfoLevel}

	// 证明模块写入 prover
	require.NoError(t, core.Write(entry, []zapcore.Field{zap.String("module", "orchestrator")}))
	require.NotZero(t, proverBuf.Len())
	require.Zero(t, sysBuf.Len())
	proverBuf.Reset()

	// 其他模块写入 system
	require.NoError(t, core.Write(entry, []zapcore.Field{zap.String("module", "api")}))
	require.NotZero(t, sysBuf.Len())
	require.Zero(t, proverBuf.Len())
	sysBuf.Reset()

	// 无 module 字段默认 system
	require.NoError(t, core.Write(entry, nil))
	require.NotZero(t, sysBuf.Len())
	require.Zero(t, proverBuf.Len())
}

func TestModuleRoutingCore_WithKeepsModule(t *testing.T) {
	var sysBuf, proverBuf bytes.Buffer
	core := &moduleRoutingCore{systemCore: newBufferCore(&sysBuf), proverCore: newBufferCore(&proverBuf)}

	child := core.With([]zapcore.Field{zap.String("module", "cache")})
	require.NoError(t, child.Write(zapcore.Entry{Message: "evicted", Level: zapcore.InfoLevel}, nil))
	require.Contains(t, proverBuf.String(), "evicted")
	require.Zero(t, sysBuf.Len())
}

// ============================================================================
// Logger
// ============================================================================

func TestLogger_WithFields(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(zc))

	logger.With("job_id", "j-1", "attempt", 2).Infof("proving %s", "ok")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "proving ok", entries[0].Message)
	fields := entries[0].ContextMap()
	require.Equal(t, "j-1", fields["job_id"])
	require.EqualValues(t, 2, fields["attempt"])
}

func TestToZapFields_DropsDanglingKey(t *testing.T) {
	fields := toZapFields("a", 1, "b")
	require.Len(t, fields, 1)
	require.Equal(t, "a", fields[0].Key)
}

func TestNew_MultiFileWritesProverLog(t *testing.T) {
	dir := t.TempDir()
	cfg := logconfig.New(&logconfig.LogOptions{
		Level:           "debug",
		FilePath:        filepath.Join(dir, "zkattest.log"),
		MaxSize:         1,
		EnableMultiFile: true,
		SystemLogFile:   "system.log",
		ProverLogFile:   "prover.log",
	})
	logger, err := New(cfg)
	require.NoError(t, err)

	NewModuleLogger(logger, "witness").Info("built witness")
	NewModuleLogger(logger, "api").Info("listening")
	require.NoError(t, logger.Sync())

	prover, err := os.ReadFile(filepath.Join(dir, "prover.log"))
	require.NoError(t, err)
	system, err := os.ReadFile(filepath.Join(dir, "system.log"))
	require.NoError(t, err)

	require.Contains(t, string(prover), "built witness")
	require.NotContains(t, string(prover), "listening")
	require.Contains(t, string(system), "listening")

	// 文件编码为 JSON，每行一条
	line := strings.SplitN(strings.TrimSpace(string(prover)), "\n", 2)[0]
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	require.Equal(t, "witness", entry["module"])
}

func TestSetLogger_IgnoresNil(t *testing.T) {
	before := GetLogger()
	SetLogger(nil)
	require.Same(t, before, GetLogger())
}
