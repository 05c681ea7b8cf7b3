package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结算结果标签
const (
	OutcomeSettled            = "settled"
	OutcomeDuplicate          = "duplicate"
	OutcomeInventoryExhausted = "inventory_exhausted"
	OutcomeInvalidState       = "invalid_state"
	OutcomeError              = "error"
)

var (
	// SettlementTotal 结算结果计数
	SettlementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_apply_total",
			Help: "Number of settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SettlementDuration 结算事务耗时
	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "settlement_apply_duration_seconds",
			Help: "Duration of the settlement transaction in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"outcome"},
	)

	// CardsAssignedTotal 已分配卡密数
	CardsAssignedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_cards_assigned_total",
			Help: "Number of cards assigned to paid orders",
		},
	)

	// PaymentCallbackTotal 支付回调计数
	PaymentCallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callback_total",
			Help: "Number of payment callbacks by method and result",
		},
		[]string{"method", "result"},
	)

	// PaymentSessionTotal 支付会话创建计数
	PaymentSessionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_session_total",
			Help: "Number of payment session creations by method and result",
		},
		[]string{"method", "result"},
	)

	// HTTPRequestDuration 接口耗时，route 取路由模板避免标签膨胀
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// OrdersCreatedTotal 下单计数
	OrdersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Number of orders created",
		},
	)
)

// Recorder 服务层使用的指标记录接口
type Recorder interface {
	ObserveSettlement(outcome string, duration time.Duration, cards int)
	ObserveCallback(method, result string)
	ObservePaymentSession(method, result string)
	ObserveOrderCreated()
}

// Prometheus 默认注册表上的实现
type Prometheus struct{}

// ObserveSettlement 记录结算结果
func (Prometheus) ObserveSettlement(outcome string, duration time.Duration, cards int) {
	SettlementTotal.WithLabelValues(outcome).Inc()
	SettlementDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if cards > 0 {
		CardsAssignedTotal.Add(float64(cards))
	}
}

// ObserveCallback 记录回调结果
func (Prometheus) ObserveCallback(method, result string) {
	PaymentCallbackTotal.WithLabelValues(method, result).Inc()
}

// ObservePaymentSession 记录支付会话创建结果
func (Prometheus) ObservePaymentSession(method, result string) {
	PaymentSessionTotal.WithLabelValues(method, result).Inc()
}

// ObserveOrderCreated 记录下单
func (Prometheus) ObserveOrderCreated() {
	OrdersCreatedTotal.Inc()
}

// Nop 不记录任何指标
type Nop struct{}

func (Nop) ObserveSettlement(string, time.Duration, int) {}
func (Nop) ObserveCallback(string, string)               {}
func (Nop) ObservePaymentSession(string, string)         {}
func (Nop) ObserveOrderCreated()                         {}
