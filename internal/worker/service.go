package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/queue"

	"github.com/hibiken/asynq"
)

// expireSweepSpec 过期订单巡检周期，兜底丢失的超时任务
const expireSweepSpec = "@every 5m"

// Service 异步队列服务
type Service struct {
	name      string
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	consumer  *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.Local})
	if _, err := scheduler.Register(expireSweepSpec, queue.NewOrderExpireSweepTask(), queue.TaskOptions(queue.TaskOrderExpireSweep)...); err != nil {
		return nil, err
	}
	return &Service{
		name:      "worker",
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		consumer:  consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动消费者与定时清扫，阻塞到 ctx 取消
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	if s.scheduler != nil {
		// 清扫只是超时任务丢失时的兜底，调度器起不来不影响消费
		if err := s.scheduler.Start(); err != nil {
			logger.Warnw("worker_scheduler_start_failed", "error", err)
		}
	}
	<-ctx.Done()
	return nil
}

// Stop 停止调度并等待进行中的任务
func (s *Service) Stop(context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	s.server.Shutdown()
	return nil
}
