package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/events"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/provider"
	"github.com/dujiao-next/settlement/internal/queue"

	"github.com/hibiken/asynq"
)

const expireSweepBatch = 200

// OrderExpirer 超时取消能力（*service.OrderService 实现）
type OrderExpirer interface {
	CancelExpiredOrder(ctx context.Context, orderID uint) (bool, error)
	SweepExpiredOrders(ctx context.Context, limit int) (int, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	orders    OrderExpirer
	publisher events.Publisher
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil {
		return newConsumer(nil, nil)
	}
	var orders OrderExpirer
	if c.OrderService != nil {
		orders = c.OrderService
	}
	return newConsumer(orders, c.Publisher)
}

func newConsumer(orders OrderExpirer, publisher events.Publisher) *Consumer {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Consumer{
		orders:    orders,
		publisher: publisher,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel)
	mux.HandleFunc(queue.TaskOrderPaid, c.handleOrderPaid)
	mux.HandleFunc(queue.TaskInventoryAlert, c.handleInventoryAlert)
	mux.HandleFunc(queue.TaskOrderExpireSweep, c.handleOrderExpireSweep)
}

func (c *Consumer) handleOrderTimeoutCancel(ctx context.Context, task *asynq.Task) error {
	var payload queue.OrderTimeoutCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.orders == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_order_service_nil", "order_id", payload.OrderID)
		return nil
	}
	cancelled, err := c.orders.CancelExpiredOrder(ctx, payload.OrderID)
	if err != nil {
		logger.Warnw("worker_order_timeout_cancel_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if !cancelled {
		logger.Debugw("worker_order_timeout_cancel_skip_not_pending", "order_id", payload.OrderID)
	}
	return nil
}

func (c *Consumer) handleOrderPaid(ctx context.Context, task *asynq.Task) error {
	var payload queue.OrderPaidPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_paid_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_paid_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	err := c.publisher.Publish(ctx, events.OrderEvent{
		Type:       constants.OrderEventPaid,
		OrderID:    payload.OrderID,
		OrderNo:    payload.OrderNo,
		ProductID:  payload.ProductID,
		Quantity:   payload.Quantity,
		Amount:     payload.Amount,
		Method:     payload.Method,
		TradeNo:    payload.TradeNo,
		OccurredAt: payload.PaidAt,
	})
	if err != nil {
		logger.Warnw("worker_order_paid_publish_failed", "order_id", payload.OrderID, "order_no", payload.OrderNo, "error", err)
		return err
	}
	return nil
}

// handleInventoryAlert 已付款但卡密不足，需要人工补货或退款
func (c *Consumer) handleInventoryAlert(ctx context.Context, task *asynq.Task) error {
	var payload queue.InventoryAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_inventory_alert_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	logger.Errorw("worker_inventory_alert",
		"order_id", payload.OrderID,
		"order_no", payload.OrderNo,
		"product_id", payload.ProductID,
		"wanted", payload.Wanted,
		"available", payload.Available,
		"trade_no", payload.TradeNo,
		"amount", payload.Amount,
		"method", payload.Method,
		"occurred_at", payload.OccurredAt,
	)
	err := c.publisher.Publish(ctx, events.OrderEvent{
		Type:       constants.OrderEventInventoryExhausted,
		OrderID:    payload.OrderID,
		OrderNo:    payload.OrderNo,
		ProductID:  payload.ProductID,
		Quantity:   payload.Wanted,
		Amount:     payload.Amount,
		Method:     payload.Method,
		TradeNo:    payload.TradeNo,
		Reason:     fmt.Sprintf("available=%d", payload.Available),
		OccurredAt: payload.OccurredAt,
	})
	if err != nil {
		logger.Warnw("worker_inventory_alert_publish_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderExpireSweep(ctx context.Context, _ *asynq.Task) error {
	if c.orders == nil {
		return nil
	}
	cancelled, err := c.orders.SweepExpiredOrders(ctx, expireSweepBatch)
	if err != nil {
		logger.Warnw("worker_order_expire_sweep_failed", "cancelled", cancelled, "error", err)
		return err
	}
	if cancelled > 0 {
		logger.Infow("worker_order_expire_sweep_done", "cancelled", cancelled)
	}
	return nil
}
