package service

import "errors"

// 校验类错误
var (
	ErrInvalidQuantity              = errors.New("invalid quantity")
	ErrProductUnavailable           = errors.New("product unavailable")
	ErrUnsupportedPaymentMethod     = errors.New("unsupported payment method")
	ErrInvalidEmail                 = errors.New("invalid email")
	ErrInvalidPhone                 = errors.New("invalid phone")
	ErrOrderNotFound                = errors.New("order not found")
	ErrPaymentAmountInvalid         = errors.New("payment amount invalid")
	ErrPaymentProviderNotConfigured = errors.New("payment provider not configured")
)

// 资源冲突类错误
var (
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInventoryExhausted      = errors.New("inventory exhausted")
	ErrInvalidTransition       = errors.New("invalid order status transition")
	ErrAlreadySettledOrInvalid = errors.New("order already settled or invalid")
)

// 完整性类错误
var (
	ErrCallbackRejected      = errors.New("payment callback rejected")
	ErrPaymentAmountMismatch = errors.New("payment amount mismatch")
)

// 瞬时错误
var (
	ErrPaymentSessionFailed = errors.New("payment session failed")
	ErrOrderNoExhausted     = errors.New("order number generation exhausted")
)
