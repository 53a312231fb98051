package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	wstypes "github.com/weisyn/zkattest/internal/api/websocket/types"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBufferSize = 256
)

// Server WebSocket服务器
// 🔌 支持JSON-RPC 2.0订阅与任务事件推送
type Server struct {
	logger              *zap.Logger
	subscriptionManager *SubscriptionManager
	upgrader            websocket.Upgrader
}

// NewServer 创建WebSocket服务器，eventBus 为 nil 时订阅可建立但不会收到推送
func NewServer(logger *zap.Logger, eventBus event.EventBus) *Server {
	return &Server{
		logger:              logger,
		subscriptionManager: NewSubscriptionManager(logger, eventBus),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生产环境应严格检查Origin
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start 开始接收事件总线推送
func (s *Server) Start() error {
	return s.subscriptionManager.Start()
}

// Stop 停止接收事件总线推送
func (s *Server) Stop() {
	s.subscriptionManager.Stop()
}

// Subscriptions 订阅管理器
func (s *Server) Subscriptions() *SubscriptionManager {
	return s.subscriptionManager
}

// HandleWebSocket 处理WebSocket连接（Gin Handler）
func (s *Server) HandleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	cl := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		remote: conn.RemoteAddr().String(),
	}
	go s.writePump(cl)

	defer func() {
		// 先移除订阅，之后不再有推送写入 send
		s.subscriptionManager.CleanupByConnection(cl)
		close(cl.done)
	}()

	s.logger.Info("WebSocket connection established", zap.String("remote_addr", cl.remote))

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket connection closed unexpectedly", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleJSONRPCMessage(cl, message)
	}

	s.logger.Info("WebSocket connection closed", zap.String("remote_addr", cl.remote))
}

// writePump 连接的唯一写协程
func (s *Server) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := cl.conn.Close(); err != nil {
			s.logger.Debug("关闭WebSocket连接失败", zap.Error(err))
		}
	}()

	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("写入WebSocket消息失败", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleJSONRPCMessage 处理JSON-RPC消息
func (s *Server) handleJSONRPCMessage(cl *client, message []byte) {
	var request wstypes.Request
	if err := json.Unmarshal(message, &request); err != nil {
		s.sendError(cl, nil, wstypes.CodeParseError, "Parse error", nil)
		return
	}

	switch request.Method {
	case wstypes.MethodSubscribe:
		s.handleSubscribe(cl, &request)
	case wstypes.MethodUnsubscribe:
		s.handleUnsubscribe(cl, &request)
	default:
		s.sendError(cl, request.ID, wstypes.CodeMethodNotFound, "Method not found", nil)
	}
}

// handleSubscribe 处理订阅请求
//
// 参数：[subscriptionType, filter (optional)]
func (s *Server) handleSubscribe(cl *client, request *wstypes.Request) {
	var params []json.RawMessage
	if err := json.Unmarshal(request.Params, &params); err != nil || len(params) == 0 {
		s.sendError(cl, request.ID, wstypes.CodeInvalidParams, "Missing subscription type", nil)
		return
	}

	var subType string
	if err := json.Unmarshal(params[0], &subType); err != nil {
		s.sendError(cl, request.ID, wstypes.CodeInvalidParams, "Subscription type must be string", nil)
		return
	}

	var filter wstypes.Filter
	if len(params) > 1 {
		if err := json.Unmarshal(params[1], &filter); err != nil {
			s.sendError(cl, request.ID, wstypes.CodeInvalidParams, "Invalid filter", err.Error())
			return
		}
	}

	id, err := s.subscriptionManager.Subscribe(cl, subType, filter)
	if err != nil {
		s.sendError(cl, request.ID, wstypes.CodeServerError, "Failed to subscribe", err.Error())
		return
	}
	s.sendResult(cl, request.ID, id)
}

// handleUnsubscribe 处理取消订阅请求
//
// 参数：[subscriptionID]
func (s *Server) handleUnsubscribe(cl *client, request *wstypes.Request) {
	var params []string
	if err := json.Unmarshal(request.Params, &params); err != nil || len(params) == 0 {
		s.sendError(cl, request.ID, wstypes.CodeInvalidParams, "Missing subscription ID", nil)
		return
	}
	s.sendResult(cl, request.ID, s.subscriptionManager.Unsubscribe(cl, params[0]))
}

// sendResult 发送JSON-RPC成功响应
func (s *Server) sendResult(cl *client, id interface{}, result interface{}) {
	s.reply(cl, wstypes.Response{JSONRPC: "2.0", ID: id, Result: result})
}

// sendError 发送JSON-RPC错误响应
func (s *Server) sendError(cl *client, id interface{}, code int, message string, data interface{}) {
	s.reply(cl, wstypes.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &wstypes.ErrorResponse{Code: code, Message: message, Data: data},
	})
}

// reply 响应与推送共用写协程，缓冲已满时最多等待 writeWait
func (s *Server) reply(cl *client, response wstypes.Response) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal response", zap.Error(err))
		return
	}
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case cl.send <- data:
	case <-timer.C:
		s.logger.Warn("WebSocket发送超时", zap.String("remote_addr", cl.remote))
	}
}
