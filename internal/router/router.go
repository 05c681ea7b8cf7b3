package router

import (
	"strings"

	"github.com/dujiao-next/settlement/internal/config"
	publichandlers "github.com/dujiao-next/settlement/internal/http/handlers/public"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsPath = "/metrics"

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	h := publichandlers.New(c)
	callbackRule := RateLimitRule{
		Scene:         "callback",
		WindowSeconds: cfg.Security.CallbackRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CallbackRateLimit.MaxRequests,
		FailOpen:      cfg.Security.CallbackRateLimit.FailOpen,
	}
	orderRule := RateLimitRule{
		Scene:         "order",
		WindowSeconds: cfg.Security.OrderRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.OrderRateLimit.MaxRequests,
		FailOpen:      cfg.Security.OrderRateLimit.FailOpen,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	metricsPath := strings.TrimSpace(cfg.Metrics.Path)
	if metricsPath == "" {
		metricsPath = defaultMetricsPath
	}
	r.Use(LoggerMiddleware(log, "/health", metricsPath))
	r.Use(CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware())
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		orders := api.Group("/orders")
		{
			orders.POST("", RateLimitMiddleware(c.Cache, orderRule, KeyByIPAndJSONField("customer_email")), h.CreateOrder)
			orders.GET("/by-number/:orderNo", h.GetOrderByNo)
			orders.GET("/:id", h.GetOrder)
			orders.GET("/:id/status", h.GetOrderStatus)
			orders.POST("/:id/cancel", h.CancelOrder)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/:orderId/create", h.CreatePayment)
			payments.GET("/:orderId/status", h.GetPaymentStatus)

			// 部分网关使用 GET 通知
			callback := RateLimitMiddleware(c.Cache, callbackRule, KeyByIP)
			payments.POST("/callback/:method", callback, h.PaymentCallback)
			payments.GET("/callback/:method", callback, h.PaymentCallback)
		}
	}

	return r
}
