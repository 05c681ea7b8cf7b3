package service

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/events"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/models"

	"gorm.io/gorm"
)

const (
	cancelReasonManual  = "manual"
	cancelReasonExpired = "expired"
)

// errOrderNotExpired 订单尚未到期，超时任务静默跳过
var errOrderNotExpired = errors.New("order not expired")

// CancelOrder 取消待支付订单，非待支付状态返回 ErrInvalidTransition
func (s *OrderService) CancelOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.cancelPending(ctx, orderID, cancelReasonManual)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelCustomerOrder 买家取消自己的待支付订单，邮箱不匹配按不存在处理
func (s *OrderService) CancelCustomerOrder(ctx context.Context, orderID uint, email string) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || !ownedBy(order, email) {
		return nil, ErrOrderNotFound
	}
	return s.CancelOrder(ctx, orderID)
}

// CancelExpiredOrder 超时取消，订单已不是待支付或未到期时返回 false
func (s *OrderService) CancelExpiredOrder(ctx context.Context, orderID uint) (bool, error) {
	_, err := s.cancelPending(ctx, orderID, cancelReasonExpired)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, errOrderNotExpired), errors.Is(err, ErrOrderNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SweepExpiredOrders 批量取消已过期的待支付订单，兜底丢失的超时任务
func (s *OrderService) SweepExpiredOrders(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	orders, err := s.orderRepo.ListExpiredPending(s.now(), limit)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}
		ok, err := s.CancelExpiredOrder(ctx, order.ID)
		if err != nil {
			logger.Warnw("order_sweep_cancel_failed", "order_id", order.ID, "error", err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *OrderService) cancelPending(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	now := s.now()
	var cancelled *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByID(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if !CanTransition(order.Status, constants.OrderStatusCancelled) {
			return ErrInvalidTransition
		}
		if reason == cancelReasonExpired && order.ExpiresAt != nil && order.ExpiresAt.After(now) {
			return errOrderNotExpired
		}
		affected, err := orderRepo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusCancelled, map[string]interface{}{
			"canceled_at": now,
			"updated_at":  now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			// 并发结算或取消已先一步改变状态
			return ErrInvalidTransition
		}
		if _, err := s.paymentRepo.WithTx(tx).ExpirePendingByOrder(order.ID, now); err != nil {
			return err
		}
		order.Status = constants.OrderStatusCancelled
		order.CanceledAt = &now
		order.UpdatedAt = now
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateOrderStatus(ctx, s.cache, cancelled.ID)
	s.publishCancelled(ctx, cancelled, reason, now)
	logger.ForOrder(cancelled.ID, cancelled.OrderNo).Infow("order_cancelled", "reason", reason)
	return cancelled, nil
}

func (s *OrderService) publishCancelled(ctx context.Context, order *models.Order, reason string, at time.Time) {
	err := s.publisher.Publish(ctx, events.OrderEvent{
		Type:       constants.OrderEventCancelled,
		OrderID:    order.ID,
		OrderNo:    order.OrderNo,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		Amount:     order.TotalAmount.String(),
		Method:     order.PaymentMethod,
		Reason:     reason,
		OccurredAt: at,
	})
	if err != nil {
		logger.Warnw("order_cancelled_event_publish_failed", "order_id", order.ID, "error", err)
	}
}
