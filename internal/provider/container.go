package provider

import (
	"errors"

	"github.com/dujiao-next/settlement/internal/cache"
	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/events"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/metrics"
	"github.com/dujiao-next/settlement/internal/queue"
	"github.com/dujiao-next/settlement/internal/repository"
	"github.com/dujiao-next/settlement/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
// 数据库、缓存、队列与事件投递都在这里显式创建并向下传递，不使用进程级全局句柄。
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	Cache       *cache.Store
	QueueClient *queue.Client
	Publisher   events.Publisher
	Metrics     metrics.Recorder

	// Repositories
	OrderRepo   repository.OrderRepository
	ProductRepo repository.ProductRepository
	CardRepo    repository.CardRepository
	CouponRepo  repository.CouponRepository
	PaymentRepo repository.PaymentRepository

	// Services
	CouponService     *service.CouponService
	OrderService      *service.OrderService
	SettlementService *service.SettlementService
	PaymentService    *service.PaymentService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config, db *gorm.DB) *Container {
	store := cache.NewStore(&cfg.Redis)

	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		recorder = metrics.Prometheus{}
	}

	c := &Container{
		Config:      cfg,
		DB:          db,
		Cache:       store,
		QueueClient: queueClient,
		Publisher:   events.NewPublisher(cfg.Kafka),
		Metrics:     recorder,
	}
	c.initRepositories()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	c.OrderRepo = repository.NewOrderRepository(c.DB)
	c.ProductRepo = repository.NewProductRepository(c.DB)
	c.CardRepo = repository.NewCardRepository(c.DB)
	c.CouponRepo = repository.NewCouponRepository(c.DB)
	c.PaymentRepo = repository.NewPaymentRepository(c.DB)
}

func (c *Container) initServices() {
	cfg := c.Config
	c.CouponService = service.NewCouponService(c.CouponRepo)
	c.OrderService = service.NewOrderService(service.OrderServiceDeps{
		DB:          c.DB,
		OrderRepo:   c.OrderRepo,
		ProductRepo: c.ProductRepo,
		CardRepo:    c.CardRepo,
		PaymentRepo: c.PaymentRepo,
		CouponSvc:   c.CouponService,
		Queue:       c.QueueClient,
		Cache:       c.Cache,
		Publisher:   c.Publisher,
		Metrics:     c.Metrics,
	}, service.OrderServiceOptions{
		ExpireMinutes:  cfg.Order.PaymentExpireMinutes,
		OrderNoPrefix:  cfg.Order.OrderNoPrefix,
		StatusCacheTTL: cfg.Order.StatusCacheTTL(),
		PublicBaseURL:  cfg.Payment.PublicBaseURL,
	})
	c.SettlementService = service.NewSettlementService(service.SettlementServiceDeps{
		DB:          c.DB,
		OrderRepo:   c.OrderRepo,
		CardRepo:    c.CardRepo,
		ProductRepo: c.ProductRepo,
		PaymentRepo: c.PaymentRepo,
		Queue:       c.QueueClient,
		Cache:       c.Cache,
		Metrics:     c.Metrics,
	})
	c.PaymentService = service.NewPaymentService(service.PaymentServiceDeps{
		DB:          c.DB,
		OrderRepo:   c.OrderRepo,
		PaymentRepo: c.PaymentRepo,
		Settlement:  c.SettlementService,
		Cache:       c.Cache,
		Metrics:     c.Metrics,
	}, cfg.Payment)
}

// Close 释放外部连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Publisher != nil {
		errs = append(errs, c.Publisher.Close())
	}
	errs = append(errs, c.QueueClient.Close(), c.Cache.Close())
	return errors.Join(errs...)
}
