package service

import "github.com/dujiao-next/settlement/internal/constants"

// allowedTransitions 订单状态流转表
// processing 由外部交付流程驱动，这里不允许进入。
var allowedTransitions = map[int]map[int]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusPaid:      true,
		constants.OrderStatusCancelled: true,
		constants.OrderStatusFailed:    true,
	},
}

// CanTransition 判断订单状态能否从 from 流转到 to
func CanTransition(from, to int) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// OrderStatusName 订单状态对外名称
func OrderStatusName(status int) string {
	switch status {
	case constants.OrderStatusPending:
		return constants.OrderStatusNamePending
	case constants.OrderStatusProcessing:
		return constants.OrderStatusNameProcessing
	case constants.OrderStatusPaid:
		return constants.OrderStatusNameCompleted
	case constants.OrderStatusCancelled:
		return constants.OrderStatusNameCancelled
	case constants.OrderStatusFailed:
		return constants.OrderStatusNameFailed
	default:
		return constants.OrderStatusNamePending
	}
}

// OrderPaymentStatusName 订单支付状态对外名称
func OrderPaymentStatusName(status int) string {
	switch status {
	case constants.OrderStatusProcessing, constants.OrderStatusPaid:
		return constants.OrderPaymentStatusCaptured
	case constants.OrderStatusCancelled:
		return constants.OrderPaymentStatusCancelled
	case constants.OrderStatusFailed:
		return constants.OrderPaymentStatusFailed
	default:
		return constants.OrderPaymentStatusAwaiting
	}
}
