// Package api 提供提交流水线运行、查询状态与推送事件的 HTTP 接口
package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/LENAX/conduit/pkg/api/handler"
	"github.com/LENAX/conduit/pkg/api/service"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string        // 监听地址
	Port         int           // 监听端口
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	manager    *service.RunManager
	source     handler.EventSource
	httpServer *http.Server
	config     ServerConfig
	version    string
}

// NewAPIServer 创建API服务器
func NewAPIServer(manager *service.RunManager, source handler.EventSource, config ServerConfig, version string) *APIServer {
	s := &APIServer{
		manager: manager,
		source:  source,
		config:  config,
		version: version,
	}
	s.httpServer = &http.Server{
		Addr:        s.Addr(),
		Handler:     s.Handler(),
		ReadTimeout: config.ReadTimeout,
		// WebSocket 连接是长连接，写超时由事件推送自行控制
		WriteTimeout: 0,
	}
	return s
}

// Handler 返回路由，便于测试直接挂载
func (s *APIServer) Handler() http.Handler {
	return SetupRouter(s.manager, s.source, s.version)
}

// Start 启动服务器，阻塞直到关闭
func (s *APIServer) Start() error {
	addr := s.httpServer.Addr
	log.Printf("🚀 Conduit API Server starting on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down API Server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✅ API Server stopped")
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}
