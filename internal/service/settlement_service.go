package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/metrics"
	"github.com/dujiao-next/settlement/internal/models"
	"github.com/dujiao-next/settlement/internal/queue"
	"github.com/dujiao-next/settlement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// errDuplicateSettlement 同一交易号的重复回调，事务内不做任何写入
var errDuplicateSettlement = errors.New("duplicate settlement")

// inventoryShortfall 事务回滚后用于告警的现场
type inventoryShortfall struct {
	order   models.Order
	claimed int64
}

func (e *inventoryShortfall) Error() string {
	return fmt.Sprintf("order %s claimed %d of %d cards", e.order.OrderNo, e.claimed, e.order.Quantity)
}

func (e *inventoryShortfall) Unwrap() error {
	return ErrInventoryExhausted
}

// SettlementService 结算事务：订单置为已支付并原子占用卡密
type SettlementService struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	cardRepo    repository.CardRepository
	productRepo repository.ProductRepository
	paymentRepo repository.PaymentRepository
	queueClient TaskQueue
	cache       StatusCache
	recorder    metrics.Recorder
	now         func() time.Time
}

// SettlementServiceDeps 结算服务依赖
type SettlementServiceDeps struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	CardRepo    repository.CardRepository
	ProductRepo repository.ProductRepository
	PaymentRepo repository.PaymentRepository
	Queue       TaskQueue
	Cache       StatusCache
	Metrics     metrics.Recorder
}

// NewSettlementService 创建结算服务
func NewSettlementService(deps SettlementServiceDeps) *SettlementService {
	return &SettlementService{
		db:          deps.DB,
		orderRepo:   deps.OrderRepo,
		cardRepo:    deps.CardRepo,
		productRepo: deps.ProductRepo,
		paymentRepo: deps.PaymentRepo,
		queueClient: orNopQueue(deps.Queue),
		cache:       orNopCache(deps.Cache),
		recorder:    orNopMetrics(deps.Metrics),
		now:         time.Now,
	}
}

// SettleInput 结算输入
type SettleInput struct {
	OrderID uint
	TradeNo string
	// Amount 为零时跳过金额核对
	Amount decimal.Decimal
	Method string
	Raw    models.JSON
}

// SettleResult 结算结果
type SettleResult struct {
	Order         *models.Order
	Duplicate     bool // 同一交易号的重复结算，未产生任何写入
	CardsAssigned int
}

// Apply 执行结算
// 1. 事务内重新读取订单，非待支付时按交易号判断是否为重复回调
// 2. CAS 将订单从 pending 置为 paid 并写入交易号
// 3. 原子占用 quantity 张可用卡密，不足则整体回滚并返回 ErrInventoryExhausted
// 4. 累加商品销量，更新支付记录
func (s *SettlementService) Apply(ctx context.Context, input SettleInput) (*SettleResult, error) {
	tradeNo := strings.TrimSpace(input.TradeNo)
	if input.OrderID == 0 {
		return nil, ErrOrderNotFound
	}
	if tradeNo == "" {
		return nil, fmt.Errorf("%w: trade_no is required", ErrCallbackRejected)
	}
	log := paymentLogger("order_id", input.OrderID, "trade_no", tradeNo, "method", input.Method)
	started := s.now()
	now := started

	var settled models.Order
	var claimed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByID(input.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if !order.IsPending() {
			if isSameSettlement(order, tradeNo) {
				return errDuplicateSettlement
			}
			return ErrAlreadySettledOrInvalid
		}
		if !input.Amount.IsZero() && !input.Amount.Equal(order.TotalAmount.Decimal) {
			return fmt.Errorf("%w: want %s got %s", ErrPaymentAmountMismatch, order.TotalAmount.String(), input.Amount.StringFixed(2))
		}
		if !CanTransition(order.Status, constants.OrderStatusPaid) {
			return ErrAlreadySettledOrInvalid
		}

		updates := map[string]interface{}{
			"trade_no":   tradeNo,
			"paid_at":    now,
			"updated_at": now,
		}
		if method := normalizePaymentMethod(input.Method); method != "" {
			updates["payment_method"] = method
		}
		affected, err := orderRepo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			// 并发回调抢先完成，重读确认是否同一笔交易
			latest, err := orderRepo.GetByID(order.ID)
			if err != nil {
				return err
			}
			if isSameSettlement(latest, tradeNo) {
				return errDuplicateSettlement
			}
			return ErrAlreadySettledOrInvalid
		}

		claimed, err = s.cardRepo.WithTx(tx).ClaimAvailable(order.ProductID, order.ID, order.Quantity, now)
		if err != nil {
			return err
		}
		if claimed < int64(order.Quantity) {
			return &inventoryShortfall{order: *order, claimed: claimed}
		}

		if err := s.productRepo.WithTx(tx).IncrementSales(order.ProductID, order.Quantity); err != nil {
			return err
		}
		if err := s.recordPayment(tx, order, tradeNo, input, now); err != nil {
			return err
		}

		order.Status = constants.OrderStatusPaid
		order.TradeNo = &tradeNo
		order.PaidAt = &now
		order.UpdatedAt = now
		if method, ok := updates["payment_method"].(string); ok {
			order.PaymentMethod = method
		}
		settled = *order
		return nil
	})

	elapsed := s.now().Sub(started)
	if err != nil {
		var shortfall *inventoryShortfall
		switch {
		case errors.Is(err, errDuplicateSettlement):
			s.recorder.ObserveSettlement(metrics.OutcomeDuplicate, elapsed, 0)
			log.Infow("settlement_duplicate_ignored")
			order, loadErr := s.orderRepo.GetByIDWithCards(input.OrderID)
			if loadErr != nil {
				return nil, loadErr
			}
			return &SettleResult{Order: order, Duplicate: true}, nil
		case errors.As(err, &shortfall):
			s.recorder.ObserveSettlement(metrics.OutcomeInventoryExhausted, elapsed, 0)
			s.alertInventoryExhausted(&shortfall.order, shortfall.claimed, tradeNo, input)
			return nil, ErrInventoryExhausted
		case errors.Is(err, ErrAlreadySettledOrInvalid), errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrPaymentAmountMismatch):
			s.recorder.ObserveSettlement(metrics.OutcomeInvalidState, elapsed, 0)
			log.Warnw("settlement_rejected", "error", err)
			return nil, err
		default:
			s.recorder.ObserveSettlement(metrics.OutcomeError, elapsed, 0)
			log.Errorw("settlement_failed", "error", err)
			return nil, err
		}
	}

	s.recorder.ObserveSettlement(metrics.OutcomeSettled, elapsed, int(claimed))
	invalidateOrderStatus(ctx, s.cache, settled.ID)
	if err := s.queueClient.EnqueueOrderPaid(queue.OrderPaidPayload{
		OrderID:   settled.ID,
		OrderNo:   settled.OrderNo,
		ProductID: settled.ProductID,
		Quantity:  settled.Quantity,
		Amount:    settled.TotalAmount.String(),
		Method:    settled.PaymentMethod,
		TradeNo:   tradeNo,
		PaidAt:    now,
	}); err != nil {
		log.Warnw("settlement_enqueue_paid_event_failed", "error", err)
	}
	log.Infow("settlement_applied",
		"order_no", settled.OrderNo,
		"product_id", settled.ProductID,
		"cards_assigned", claimed,
		"total_amount", settled.TotalAmount.String(),
	)

	order, err := s.orderRepo.GetByIDWithCards(settled.ID)
	if err != nil || order == nil {
		// 已提交，读取失败不影响结算结果
		order = &settled
	}
	return &SettleResult{Order: order, CardsAssigned: int(claimed)}, nil
}

// recordPayment 更新支付记录，没有会话时补一条成功记录便于对账
func (s *SettlementService) recordPayment(tx *gorm.DB, order *models.Order, tradeNo string, input SettleInput, now time.Time) error {
	paymentRepo := s.paymentRepo.WithTx(tx)
	affected, err := paymentRepo.MarkSuccessByOrder(order.ID, tradeNo, input.Raw, now)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	method := normalizePaymentMethod(input.Method)
	if method == "" {
		method = order.PaymentMethod
	}
	return paymentRepo.Create(&models.Payment{
		OrderID:         order.ID,
		SessionID:       uuid.NewString(),
		Method:          method,
		Amount:          order.TotalAmount,
		Currency:        currencyOrDefault(order.Currency),
		Status:          constants.PaymentStatusSuccess,
		ProviderRef:     tradeNo,
		ProviderPayload: input.Raw,
		PaidAt:          &now,
		CallbackAt:      &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// alertInventoryExhausted 已付款但无法交付，记录错误日志并推送人工对账告警
func (s *SettlementService) alertInventoryExhausted(order *models.Order, claimed int64, tradeNo string, input SettleInput) {
	available, err := s.cardRepo.CountAvailable(order.ProductID)
	if err != nil {
		available = claimed
	}
	amount := order.TotalAmount.String()
	if !input.Amount.IsZero() {
		amount = input.Amount.StringFixed(2)
	}
	log := logger.ForOrder(order.ID, order.OrderNo).With("product_id", order.ProductID, "trade_no", tradeNo)
	log.Errorw("settlement_inventory_exhausted",
		"wanted", order.Quantity,
		"claimed", claimed,
		"available", available,
		"amount", amount,
		"method", input.Method,
	)
	if err := s.queueClient.EnqueueInventoryAlert(queue.InventoryAlertPayload{
		OrderID:    order.ID,
		OrderNo:    order.OrderNo,
		ProductID:  order.ProductID,
		Wanted:     order.Quantity,
		Available:  available,
		TradeNo:    tradeNo,
		Amount:     amount,
		Method:     input.Method,
		OccurredAt: s.now(),
	}); err != nil {
		log.Errorw("settlement_enqueue_inventory_alert_failed", "error", err)
	}
}

func isSameSettlement(order *models.Order, tradeNo string) bool {
	return order != nil && order.IsPaid() && order.TradeNo != nil && *order.TradeNo == tradeNo
}
