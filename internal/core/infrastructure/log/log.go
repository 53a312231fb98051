// Package log 提供基于 zap 的日志实现
// 支持控制台/文件输出、lumberjack 日志轮转、按模块拆分文件
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logconfig "github.com/weisyn/zkattest/internal/config/log"
	logInterface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// 全局日志实例
	globalLogger logInterface.Logger
	mu           sync.RWMutex
)

// Logger 实现 log.Logger 接口
type Logger struct {
	zapLogger *zap.Logger
	sugar     *zap.SugaredLogger
}

func init() {
	ResetDefault()
}

// ResetDefault 重置全局日志记录器为控制台默认配置
func ResetDefault() {
	logger, err := New(logconfig.New(&logconfig.LogOptions{
		Level:     string(logInterface.InfoLevel),
		ToConsole: true,
		FilePath:  "stderr",
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", err)
		return
	}
	SetLogger(logger)
}

// moduleRoutingCore 基于 module 字段的路由 Core
// 证明流水线模块写入 prover 日志，其余写入 system 日志
type moduleRoutingCore struct {
	systemCore zapcore.Core
	proverCore zapcore.Core
	module     string
}

func (c *moduleRoutingCore) Enabled(level zapcore.Level) bool {
	return c.systemCore.Enabled(level) || c.proverCore.Enabled(level)
}

// With 在字段中捕获 module，子 logger 保持路由结果
func (c *moduleRoutingCore) With(fields []zapcore.Field) zapcore.Core {
	module := c.module
	if m := moduleFromFields(fields); m != "" {
		module = m
	}
	return &moduleRoutingCore{
		systemCore: c.systemCore.With(fields),
		proverCore: c.proverCore.With(fields),
		module:     module,
	}
}

func (c *moduleRoutingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *moduleRoutingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	module := c.module
	if m := moduleFromFields(fields); m != "" {
		module = m
	}
	if isProverModule(module) {
		return c.proverCore.Write(entry, fields)
	}
	return c.systemCore.Write(entry, fields)
}

func (c *moduleRoutingCore) Sync() error {
	err1 := c.systemCore.Sync()
	err2 := c.proverCore.Sync()
	if err1 != nil || err2 != nil {
		return fmt.Errorf("同步日志文件失败: system=%v prover=%v", err1, err2)
	}
	return nil
}

func moduleFromFields(fields []zapcore.Field) string {
	for _, field := range fields {
		if field.Key != "module" {
			continue
		}
		// zap.String 写入 field.String；zap.Any 可能把 string 放在 Interface 中
		if field.Type == zapcore.StringType {
			return field.String
		}
		if s, ok := field.Interface.(string); ok {
			return s
		}
	}
	return ""
}

// isProverModule 判断是否为证明流水线模块
func isProverModule(module string) bool {
	switch module {
	case "proofgen", "witness", "backend", "cache", "orchestrator", "collector", "sink":
		return true
	default:
		return false
	}
}

// createFileWriter 创建带轮转的日志文件写入器
func createFileWriter(logPath string, config *logconfig.Config) zapcore.WriteSyncer {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "创建日志目录失败 %s: %v\n", logDir, err)
		return zapcore.AddSync(os.Stderr)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.GetMaxSize(),
		MaxBackups: config.GetMaxBackups(),
		MaxAge:     config.GetMaxAge(),
		Compress:   config.IsCompressionEnabled(),
	})
}

// New 根据配置创建新的日志记录器
func New(config *logconfig.Config) (logInterface.Logger, error) {
	level := zap.NewAtomicLevelAt(config.GetZapLevel())
	outputPath := config.GetFilePath()

	var cores []zapcore.Core

	// 1. 控制台输出
	if outputPath == "stdout" || outputPath == "stderr" || config.IsConsoleEnabled() {
		output := zapcore.AddSync(os.Stdout)
		if outputPath == "stderr" {
			output = zapcore.AddSync(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(config.CreateConsoleEncoder(), output, level))
	}

	// 2. 文件输出
	if outputPath != "" && outputPath != "stdout" && outputPath != "stderr" {
		absPath, err := filepath.Abs(outputPath)
		if err != nil {
			return nil, fmt.Errorf("获取日志文件绝对路径失败: %w", err)
		}
		fileEncoder := config.CreateFileEncoder()

		if config.IsMultiFileEnabled() {
			logDir := filepath.Dir(absPath)
			systemCore := zapcore.NewCore(fileEncoder,
				createFileWriter(filepath.Join(logDir, config.GetSystemLogFile()), config), level)
			proverCore := zapcore.NewCore(fileEncoder,
				createFileWriter(filepath.Join(logDir, config.GetProverLogFile()), config), level)
			cores = append(cores, &moduleRoutingCore{systemCore: systemCore, proverCore: proverCore})
		} else {
			cores = append(cores, zapcore.NewCore(fileEncoder, createFileWriter(absPath, config), level))
		}
	}

	if len(cores) == 0 {
		cores = append(cores, zapcore.NewNopCore())
	}

	zapOptions := []zap.Option{}
	if config.IsCallerEnabled() {
		// 跳过一层封装，使调用位置指向真实业务代码
		zapOptions = append(zapOptions, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.IsStacktraceEnabled() {
		zapOptions = append(zapOptions, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zapOptions...)
	return &Logger{
		zapLogger: zapLogger,
		sugar:     zapLogger.Sugar(),
	}, nil
}

// NewFromZap 包装已有的 zap 记录器（测试中常与 zaptest/observer 配合）
func NewFromZap(zapLogger *zap.Logger) logInterface.Logger {
	return &Logger{zapLogger: zapLogger, sugar: zapLogger.Sugar()}
}

// NewNop 丢弃所有输出的记录器
func NewNop() logInterface.Logger {
	return NewFromZap(zap.NewNop())
}

// GetZapLogger 获取底层的zap日志记录器
func (l *Logger) GetZapLogger() *zap.Logger {
	return l.zapLogger
}

// SetLogger 设置全局日志记录器
func SetLogger(logger logInterface.Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
}

// GetLogger 获取全局日志记录器
func GetLogger() logInterface.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// With 基于全局记录器创建带字段的记录器
func With(args ...interface{}) logInterface.Logger {
	return GetLogger().With(args...)
}

// toZapFields 将键值对参数转换为zap字段，奇数个参数时丢弃最后一个
func toZapFields(args ...interface{}) []zap.Field {
	if len(args)%2 != 0 {
		args = args[:len(args)-1]
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

func (l *Logger) Debug(msg string)                          { l.sugar.Debug(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(msg string)                           { l.sugar.Info(msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(msg string)                           { l.sugar.Warn(msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(msg string)                          { l.sugar.Error(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *Logger) Fatal(msg string)                          { l.sugar.Fatal(msg) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// With 返回一个带有额外字段的Logger
func (l *Logger) With(args ...interface{}) logInterface.Logger {
	zl := l.zapLogger.With(toZapFields(args...)...)
	return &Logger{zapLogger: zl, sugar: zl.Sugar()}
}

// Sync 同步日志缓冲区到输出
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}
