// Package types 定义 WebSocket 订阅协议（JSON-RPC 2.0）的消息结构
package types

import "encoding/json"

// 方法名
const (
	MethodSubscribe    = "zk_subscribe"
	MethodUnsubscribe  = "zk_unsubscribe"
	MethodSubscription = "zk_subscription"
)

// 订阅类型
const (
	// SubscriptionJobs 请求状态迁移，结果为 types.JobEvent
	SubscriptionJobs = "jobs"
	// SubscriptionArtifacts 通过自检的证明结果，结果为 ArtifactEvent
	SubscriptionArtifacts = "artifacts"
)

// JSON-RPC 错误码
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// Request JSON-RPC 2.0 请求
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response JSON-RPC 2.0 响应
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      interface{}    `json:"id"`
	Result  interface{}    `json:"result,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse JSON-RPC 2.0 错误
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Notification 服务端推送
type Notification struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  SubscriptionEvent `json:"params"`
}

// SubscriptionEvent 推送内容
type SubscriptionEvent struct {
	Subscription string      `json:"subscription"`
	Result       interface{} `json:"result"`
}

// Filter 订阅过滤条件，空字段不过滤
type Filter struct {
	RequestID string `json:"request_id,omitempty"`
	BackendID string `json:"backend_id,omitempty"`
}

// ArtifactEvent 证明结果摘要，不含证明字节
type ArtifactEvent struct {
	BackendID     string `json:"backend_id"`
	Version       uint32 `json:"version"`
	WitnessDigest string `json:"witness_digest"`
	ProofSize     int    `json:"proof_size"`
	Attempts      int    `json:"attempts"`
	GeneratedAt   int64  `json:"generated_at"`
}
