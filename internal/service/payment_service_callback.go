package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"
	"github.com/dujiao-next/settlement/internal/payment"
)

// 回调结果标签
const (
	callbackResultSettled   = "settled"
	callbackResultDuplicate = "duplicate"
	callbackResultRejected  = "rejected"
	callbackResultFailed    = "failed"
)

// CallbackResult 回调处理结果
type CallbackResult struct {
	Order     *models.Order
	Event     *payment.SettlementEvent
	Duplicate bool
}

// HandleCallback 处理支付异步回调
// 验签失败直接拒绝，不会进入结算；同一交易号的重复回调视为成功。
func (s *PaymentService) HandleCallback(ctx context.Context, method string, form map[string][]string) (*CallbackResult, error) {
	method = normalizePaymentMethod(method)
	adapter, err := s.selectAdapter(method)
	if err != nil {
		s.recorder.ObserveCallback(method, callbackResultRejected)
		return nil, err
	}
	log := paymentLogger("method", method)

	event, err := adapter.VerifyCallback(form)
	if err != nil {
		s.recorder.ObserveCallback(method, callbackResultRejected)
		log.Warnw("payment_callback_rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}
	log = log.With("order_no", event.OrderNo, "trade_no", event.TradeNo, "amount", event.Amount.StringFixed(2))

	order, err := s.orderRepo.GetByOrderNo(event.OrderNo)
	if err != nil {
		s.recorder.ObserveCallback(method, callbackResultFailed)
		return nil, err
	}
	if order == nil {
		s.recorder.ObserveCallback(method, callbackResultRejected)
		log.Warnw("payment_callback_order_not_found")
		return nil, ErrOrderNotFound
	}

	settled, err := s.settlement.Apply(ctx, SettleInput{
		OrderID: order.ID,
		TradeNo: event.TradeNo,
		Amount:  event.Amount,
		Method:  method,
		Raw:     models.JSON(event.Raw),
	})
	if err != nil {
		result := callbackResultFailed
		if errors.Is(err, ErrPaymentAmountMismatch) || errors.Is(err, ErrAlreadySettledOrInvalid) {
			result = callbackResultRejected
		}
		s.recorder.ObserveCallback(method, result)
		log.Warnw("payment_callback_settle_failed", "order_id", order.ID, "error", err)
		return nil, err
	}
	if settled.Duplicate {
		s.recorder.ObserveCallback(method, callbackResultDuplicate)
	} else {
		s.recorder.ObserveCallback(method, callbackResultSettled)
	}
	log.Infow("payment_callback_processed", "order_id", order.ID, "duplicate", settled.Duplicate)
	return &CallbackResult{
		Order:     settled.Order,
		Event:     event,
		Duplicate: settled.Duplicate,
	}, nil
}

// CallbackReply 生成回调应答，网关有固定格式时由适配器决定
func (s *PaymentService) CallbackReply(method string, ok bool) (contentType string, body string) {
	if adapter, err := s.selectAdapter(method); err == nil {
		if responder, isResponder := adapter.(payment.CallbackResponder); isResponder {
			return responder.CallbackReply(ok)
		}
	}
	if ok {
		return "text/plain; charset=utf-8", constants.CallbackReplySuccess
	}
	return "text/plain; charset=utf-8", constants.CallbackReplyFail
}
