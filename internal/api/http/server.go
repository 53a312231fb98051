// Package http 提供证明服务的 HTTP API
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weisyn/zkattest/internal/api/http/handlers"
	"github.com/weisyn/zkattest/internal/api/http/middleware"
	apitypes "github.com/weisyn/zkattest/internal/api/types"
	"github.com/weisyn/zkattest/internal/api/websocket"
	apiconfig "github.com/weisyn/zkattest/internal/config/api"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
)

const (
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Deps 路由依赖
type Deps struct {
	Service  proofgen.ProofService
	Runtime  handlers.Runtime
	Registry proofgen.BackendRegistry
	Cache    proofgen.ProofCache

	// 以下可选
	Results    []handlers.ResultLookup
	Events     *websocket.Server
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server HTTP服务器
//
// 🏗️ **路由**：
//   - /health, /health/live, /health/ready
//   - /metrics
//   - /api/v1/proofs, /api/v1/backends, /api/v1/cache, /api/v1/stats
//   - /api/v1/events（WebSocket 订阅）
type Server struct {
	opts   *apiconfig.APIOptions
	logger log.Logger
	router *gin.Engine
	events *websocket.Server

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer 创建HTTP服务器并注册路由
func NewServer(opts *apiconfig.APIOptions, logger log.Logger, deps Deps) (*Server, error) {
	router, err := NewRouter(opts, logger, deps)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:   opts,
		logger: logger,
		router: router,
		events: deps.Events,
	}, nil
}

// NewRouter 创建 gin 路由
func NewRouter(opts *apiconfig.APIOptions, logger log.Logger, deps Deps) (*gin.Engine, error) {
	zl := logger.GetZapLogger()
	if zl == nil {
		zl = zap.NewNop()
	}
	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	metrics, err := middleware.NewMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("register api metrics: %w", err)
	}

	router := gin.New()
	router.Use(
		middleware.Recovery(zl),
		middleware.NewRequestID().Middleware(),
		middleware.NewLogger(logger).Middleware(),
		metrics.Middleware(),
		bodyLimit(opts.MaxRequestSize),
		middleware.ErrorHandler(zl),
	)

	health := handlers.NewHealthHandler(deps.Runtime, deps.Registry, deps.Cache)
	health.RegisterRoutes(&router.RouterGroup)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.NewRateLimit(zl, opts.ReadRateLimit, opts.WriteRateLimit).Middleware())

	handlers.NewProofHandler(zl, deps.Service, opts.WaitTimeout, deps.Results...).RegisterRoutes(v1)
	handlers.NewBackendHandler(deps.Registry).RegisterRoutes(v1)
	handlers.NewCacheHandler(zl, deps.Cache).RegisterRoutes(v1)
	health.RegisterStatsRoutes(v1)

	if deps.Events != nil && opts.EnableWebSocket {
		router.GET("/api/v1/events", deps.Events.HandleWebSocket)
	}

	router.NoRoute(func(c *gin.Context) {
		middleware.WriteError(c, apitypes.CodeNotFound, "接口不存在",
			fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path),
			http.StatusNotFound, nil)
	})
	return router, nil
}

// Handler 返回路由，便于测试
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 实际监听地址，未启动时为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start 监听端口并在后台提供服务
//
// 同步等待结果的请求最长持续 WaitTimeout，写超时在此基础上放宽。
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.opts.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.HTTPAddr, err)
	}

	if s.events != nil && s.opts.EnableWebSocket {
		if err := s.events.Start(); err != nil {
			_ = listener.Close()
			return err
		}
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout + s.opts.WaitTimeout,
		IdleTimeout:  idleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = listener.Addr()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP服务器运行失败: %v", err)
		}
	}()

	s.logger.Infof("HTTP服务器已启动: http://%s/api/v1/", listener.Addr())
	return nil
}

// Stop 优雅关闭HTTP服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if s.events != nil {
		s.events.Stop()
	}

	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		s.logger.Errorf("HTTP服务器关闭出错: %v", err)
		return err
	}
	s.logger.Info("HTTP服务器已关闭")
	return nil
}

// bodyLimit 限制请求体大小
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
