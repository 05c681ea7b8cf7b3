package service

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/metrics"
	"github.com/dujiao-next/settlement/internal/queue"

	"go.uber.org/zap"
)

// TaskQueue 异步任务投递（*queue.Client 实现）
type TaskQueue interface {
	EnqueueOrderTimeoutCancel(payload queue.OrderTimeoutCancelPayload, delay time.Duration) error
	EnqueueOrderPaid(payload queue.OrderPaidPayload) error
	EnqueueInventoryAlert(payload queue.InventoryAlertPayload) error
}

// StatusCache 订单状态快照缓存（*cache.Store 实现）
type StatusCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type nopQueue struct{}

func (nopQueue) EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload, time.Duration) error {
	return nil
}
func (nopQueue) EnqueueOrderPaid(queue.OrderPaidPayload) error           { return nil }
func (nopQueue) EnqueueInventoryAlert(queue.InventoryAlertPayload) error { return nil }

type nopCache struct{}

func (nopCache) GetJSON(context.Context, string, interface{}) (bool, error) { return false, nil }
func (nopCache) SetJSON(context.Context, string, interface{}, time.Duration) error {
	return nil
}
func (nopCache) Del(context.Context, string) error { return nil }

func orNopQueue(q TaskQueue) TaskQueue {
	if q == nil {
		return nopQueue{}
	}
	return q
}

func orNopCache(c StatusCache) StatusCache {
	if c == nil {
		return nopCache{}
	}
	return c
}

func orNopMetrics(r metrics.Recorder) metrics.Recorder {
	if r == nil {
		return metrics.Nop{}
	}
	return r
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// normalizePaymentMethod 统一支付方式标识
func normalizePaymentMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

// IsSupportedPaymentMethod 判断支付方式是否在支持列表中
func IsSupportedPaymentMethod(method string) bool {
	switch normalizePaymentMethod(method) {
	case constants.PaymentMethodAlipay,
		constants.PaymentMethodWechat,
		constants.PaymentMethodPayJS,
		constants.PaymentMethodCodePay:
		return true
	default:
		return false
	}
}
