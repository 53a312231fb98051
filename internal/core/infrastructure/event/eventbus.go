// Package event 基于asaskevich/EventBus的事件总线实现
package event

import (
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
)

// EventBus 基于asaskevich/EventBus的实现，附带发布计数
type EventBus struct {
	bus       evbus.Bus
	published atomic.Uint64
}

var _ event.EventBus = (*EventBus)(nil)

// New 创建事件总线实例
func New() *EventBus {
	return &EventBus{bus: evbus.New()}
}

// Subscribe 实现订阅
func (eb *EventBus) Subscribe(eventType event.EventType, handler interface{}) error {
	return eb.bus.Subscribe(string(eventType), handler)
}

// SubscribeAsync 实现异步订阅
func (eb *EventBus) SubscribeAsync(eventType event.EventType, handler interface{}, transactional bool) error {
	return eb.bus.SubscribeAsync(string(eventType), handler, transactional)
}

// Unsubscribe 取消订阅
func (eb *EventBus) Unsubscribe(eventType event.EventType, handler interface{}) error {
	return eb.bus.Unsubscribe(string(eventType), handler)
}

// Publish 实现发布
func (eb *EventBus) Publish(eventType event.EventType, args ...interface{}) {
	eb.published.Add(1)
	eb.bus.Publish(string(eventType), args...)
}

// HasCallback 检查是否有回调
func (eb *EventBus) HasCallback(eventType event.EventType) bool {
	return eb.bus.HasCallback(string(eventType))
}

// WaitAsync 等待异步处理完成
func (eb *EventBus) WaitAsync() {
	eb.bus.WaitAsync()
}

// PublishedCount 已发布事件总数
func (eb *EventBus) PublishedCount() uint64 {
	return eb.published.Load()
}
