package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	wstypes "github.com/weisyn/zkattest/internal/api/websocket/types"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/types"
)

// client 一个 WebSocket 连接
//
// 所有写入经 send 通道交给唯一的写协程，done 关闭后写协程退出。
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	remote string
}

// Subscription 订阅信息
type Subscription struct {
	ID     string
	Type   string
	Filter wstypes.Filter
	client *client
}

// SubscriptionManager 订阅管理器
//
// 🔔 只向事件总线注册一次，由管理器按订阅类型与过滤条件分发到各连接。
// 事件在编排器协程中同步到达，分发不能阻塞：连接发送缓冲已满时丢弃该条推送。
type SubscriptionManager struct {
	logger *zap.Logger
	bus    event.EventBus

	mu            sync.RWMutex
	subscriptions map[string]*Subscription

	dropped atomic.Uint64
}

// NewSubscriptionManager 创建订阅管理器，bus 可为 nil
func NewSubscriptionManager(logger *zap.Logger, bus event.EventBus) *SubscriptionManager {
	return &SubscriptionManager{
		logger:        logger,
		bus:           bus,
		subscriptions: make(map[string]*Subscription),
	}
}

// Start 订阅事件总线
func (m *SubscriptionManager) Start() error {
	if m.bus == nil {
		return nil
	}
	if err := m.bus.Subscribe(event.EventTypeJobTransition, m.onJobEvent); err != nil {
		return fmt.Errorf("subscribe job events: %w", err)
	}
	if err := m.bus.Subscribe(event.EventTypeArtifactReady, m.onArtifact); err != nil {
		return fmt.Errorf("subscribe artifact events: %w", err)
	}
	return nil
}

// Stop 取消事件总线订阅
func (m *SubscriptionManager) Stop() {
	if m.bus == nil {
		return
	}
	if err := m.bus.Unsubscribe(event.EventTypeJobTransition, m.onJobEvent); err != nil {
		m.logger.Warn("取消任务事件订阅失败", zap.Error(err))
	}
	if err := m.bus.Unsubscribe(event.EventTypeArtifactReady, m.onArtifact); err != nil {
		m.logger.Warn("取消结果事件订阅失败", zap.Error(err))
	}
}

// Subscribe 为连接创建订阅
func (m *SubscriptionManager) Subscribe(c *client, subType string, filter wstypes.Filter) (string, error) {
	switch subType {
	case wstypes.SubscriptionJobs, wstypes.SubscriptionArtifacts:
	default:
		return "", fmt.Errorf("unknown subscription type %q", subType)
	}

	id := fmt.Sprintf("0x%s", uuid.New().String()[:8])
	m.mu.Lock()
	m.subscriptions[id] = &Subscription{ID: id, Type: subType, Filter: filter, client: c}
	m.mu.Unlock()

	m.logger.Debug("订阅已创建",
		zap.String("id", id),
		zap.String("type", subType),
		zap.String("remote_addr", c.remote))
	return id, nil
}

// Unsubscribe 取消订阅，只能取消本连接的订阅
func (m *SubscriptionManager) Unsubscribe(c *client, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok || sub.client != c {
		return false
	}
	delete(m.subscriptions, id)
	return true
}

// CleanupByConnection 清理连接的所有订阅
func (m *SubscriptionManager) CleanupByConnection(c *client) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sub := range m.subscriptions {
		if sub.client == c {
			delete(m.subscriptions, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("清理连接订阅", zap.Int("count", n), zap.String("remote_addr", c.remote))
	}
	return n
}

// Count 当前订阅数
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Dropped 因发送缓冲已满被丢弃的推送数
func (m *SubscriptionManager) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *SubscriptionManager) onJobEvent(ev types.JobEvent) {
	m.dispatch(wstypes.SubscriptionJobs, func(f wstypes.Filter) bool {
		return (f.RequestID == "" || f.RequestID == ev.RequestID) &&
			(f.BackendID == "" || f.BackendID == ev.BackendID)
	}, ev)
}

func (m *SubscriptionManager) onArtifact(a *types.ProofArtifact) {
	if a == nil {
		return
	}
	summary := wstypes.ArtifactEvent{
		BackendID:     a.Backend.ID,
		Version:       a.Backend.Version,
		WitnessDigest: a.WitnessDigest.Hex(),
		ProofSize:     a.Metadata.ProofSize,
		Attempts:      a.Metadata.Attempts,
		GeneratedAt:   a.Metadata.GeneratedAt.Unix(),
	}
	m.dispatch(wstypes.SubscriptionArtifacts, func(f wstypes.Filter) bool {
		return f.BackendID == "" || f.BackendID == a.Backend.ID
	}, summary)
}

// dispatch 推送到所有匹配的订阅
func (m *SubscriptionManager) dispatch(subType string, match func(wstypes.Filter) bool, result interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		if sub.Type != subType || !match(sub.Filter) {
			continue
		}
		data, err := json.Marshal(wstypes.Notification{
			JSONRPC: "2.0",
			Method:  wstypes.MethodSubscription,
			Params:  wstypes.SubscriptionEvent{Subscription: sub.ID, Result: result},
		})
		if err != nil {
			m.logger.Error("序列化推送失败", zap.Error(err))
			return
		}
		select {
		case sub.client.send <- data:
		default:
			m.dropped.Add(1)
			m.logger.Debug("发送缓冲已满，丢弃推送",
				zap.String("subscription", sub.ID),
				zap.String("remote_addr", sub.client.remote))
		}
	}
}
