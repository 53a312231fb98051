package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apitypes "github.com/weisyn/zkattest/internal/api/types"
)

// limiterIdleTTL 客户端限流器闲置多久后回收
const limiterIdleTTL = 10 * time.Minute

// RateLimit 按客户端IP限流
// - 读操作（GET/HEAD）宽松限流
// - 提交与取消等写操作严格限流，证明生成开销大
type RateLimit struct {
	logger     *zap.Logger
	readLimit  int
	writeLimit int

	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	read     *rate.Limiter
	write    *rate.Limiter
	lastSeen time.Time
}

// NewRateLimit 创建限流中间件，limit 为每秒请求数，同时作为突发容量
func NewRateLimit(logger *zap.Logger, readLimit, writeLimit int) *RateLimit {
	return &RateLimit{
		logger:     logger,
		readLimit:  readLimit,
		writeLimit: writeLimit,
		limiters:   make(map[string]*clientLimiter),
		lastSweep:  time.Now(),
	}
}

// Middleware 返回Gin中间件
func (m *RateLimit) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		write := isWriteOperation(c.Request.Method)
		limit := m.readLimit
		if write {
			limit = m.writeLimit
		}

		if !m.allow(c.ClientIP(), write, time.Now()) {
			m.logger.Debug("请求被限流",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			WriteError(c, apitypes.CodeCommonRateLimited, "请求过于频繁，请稍后重试",
				"request rate limit exceeded", http.StatusTooManyRequests,
				map[string]interface{}{"limit": limit})
			return
		}
		c.Next()
	}
}

// allow 检查并消费一个令牌
func (m *RateLimit) allow(clientID string, write bool, now time.Time) bool {
	m.mu.Lock()
	if now.Sub(m.lastSweep) > limiterIdleTTL {
		for id, l := range m.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(m.limiters, id)
			}
		}
		m.lastSweep = now
	}
	l, ok := m.limiters[clientID]
	if !ok {
		l = &clientLimiter{
			read:  rate.NewLimiter(rate.Limit(m.readLimit), m.readLimit),
			write: rate.NewLimiter(rate.Limit(m.writeLimit), m.writeLimit),
		}
		m.limiters[clientID] = l
	}
	l.lastSeen = now
	m.mu.Unlock()

	if write {
		return l.write.AllowN(now, 1)
	}
	return l.read.AllowN(now, 1)
}

func isWriteOperation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
