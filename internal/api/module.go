// Package api 组装对外接口：HTTP API 与 WebSocket 事件订阅
package api

import (
	"go.uber.org/fx"

	"github.com/weisyn/zkattest/internal/api/http"
)

// Module 返回API模块
//
// WebSocket 订阅挂在 HTTP 服务器的 /api/v1/events 路由上，随 HTTP 服务器一起启停。
func Module() fx.Option {
	return fx.Module("api",
		http.Module(),
	)
}
