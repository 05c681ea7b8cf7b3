package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
)

// HTTPService 对外 API（下单、支付、回调）的 HTTP 服务
type HTTPService struct {
	server *http.Server
}

// NewHTTPService 创建 HTTP 服务，读写超时取自 server 配置
func NewHTTPService(cfg config.ServerConfig, handler http.Handler) *HTTPService {
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.ReadTimeoutSeconds > 0 {
		srv.ReadTimeout = time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	}
	if cfg.WriteTimeoutSeconds > 0 {
		srv.WriteTimeout = time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	}
	return &HTTPService{server: srv}
}

// Name 服务名称
func (s *HTTPService) Name() string { return "http" }

// Start 阻塞监听。请求上下文携带 ctx 的值但不随其取消，关闭时由 Stop 负责排空
func (s *HTTPService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("http server not initialized")
	}
	base := context.WithoutCancel(ctx)
	s.server.BaseContext = func(net.Listener) context.Context { return base }
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop 优雅关闭，等待进行中的回调处理完成
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
