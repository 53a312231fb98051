// Package event 定义进程内事件总线接口
//
// 编排器通过事件总线广播任务状态迁移，WebSocket 推送与结果投递订阅这些事件。
package event

// EventType 事件类型
type EventType string

const (
	// EventTypeJobTransition 请求状态迁移，参数为 types.JobEvent
	EventTypeJobTransition EventType = "proofgen.job.transition"

	// EventTypeArtifactReady 证明结果已通过自检，参数为 *types.ProofArtifact
	EventTypeArtifactReady EventType = "proofgen.artifact.ready"
)

// EventBus 事件总线接口
type EventBus interface {
	// Subscribe 同步订阅，handler 在 Publish 的调用方协程中执行
	Subscribe(eventType EventType, handler interface{}) error

	// SubscribeAsync 异步订阅，transactional 为 true 时同一 handler 串行执行
	SubscribeAsync(eventType EventType, handler interface{}, transactional bool) error

	// Unsubscribe 取消订阅
	Unsubscribe(eventType EventType, handler interface{}) error

	// Publish 发布事件
	Publish(eventType EventType, args ...interface{})

	// HasCallback 是否存在订阅者
	HasCallback(eventType EventType) bool

	// WaitAsync 等待所有异步处理完成
	WaitAsync()
}
