// Package log 定义证明服务的日志接口
//
// 📋 所有模块只依赖本接口，具体实现（zap + lumberjack）由
// internal/core/infrastructure/log 通过依赖注入提供。
package log

import "go.uber.org/zap"

// Logger 日志记录器接口
//
// With 的参数按键值对给出：With("module", "proofgen", "job_id", id)。
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})

	// Fatal 记录后退出进程，只允许在启动阶段使用
	Fatal(msg string)
	Fatalf(format string, args ...interface{})

	// With 返回附带字段的子记录器
	With(args ...interface{}) Logger

	// Sync 刷新缓冲区
	Sync() error

	// GetZapLogger 获取底层 zap 记录器，供需要强类型字段的模块使用
	GetZapLogger() *zap.Logger
}
