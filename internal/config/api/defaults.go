package api

import "time"

// API服务默认配置值
const (
	// defaultHTTPEnabled 默认启用HTTP API
	defaultHTTPEnabled = true

	// defaultHTTPAddr HTTP监听地址
	defaultHTTPAddr = "0.0.0.0:8088"

	// defaultEnableWebSocket 默认启用任务事件 WebSocket 推送
	defaultEnableWebSocket = true

	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second

	// defaultMaxRequestSize 请求体上限，证据内嵌在请求中时可能较大
	defaultMaxRequestSize = 16 << 20

	// defaultWaitTimeout 同步等待证明结果的最长时间
	defaultWaitTimeout = 10 * time.Minute

	// 每个客户端的读/写限流（QPS）
	defaultReadRateLimit  = 100
	defaultWriteRateLimit = 10
)
