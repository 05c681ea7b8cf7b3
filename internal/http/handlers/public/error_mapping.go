package public

import (
	"errors"

	"github.com/dujiao-next/settlement/internal/http/response"
	"github.com/dujiao-next/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	key    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.key, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var orderLookupErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, key: "error.order_not_found"},
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidQuantity, code: response.CodeBadRequest, key: "error.quantity_invalid"},
	{target: service.ErrProductUnavailable, code: response.CodeBadRequest, key: "error.product_not_available"},
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
	{target: service.ErrInvalidPhone, code: response.CodeBadRequest, key: "error.phone_invalid"},
	{target: service.ErrUnsupportedPaymentMethod, code: response.CodeBadRequest, key: "error.payment_method_unsupported"},
	{target: service.ErrInsufficientStock, code: response.CodeConflict, key: "error.stock_insufficient"},
	{target: service.ErrOrderNoExhausted, code: response.CodeInternal, key: "error.order_no_exhausted"},
}

var orderCancelErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidTransition, code: response.CodeConflict, key: "error.order_status_invalid"},
}

var paymentCreateErrorRules = []mappedHandlerError{
	{target: service.ErrUnsupportedPaymentMethod, code: response.CodeBadRequest, key: "error.payment_method_unsupported"},
	{target: service.ErrPaymentProviderNotConfigured, code: response.CodeBadRequest, key: "error.payment_provider_not_config"},
	{target: service.ErrPaymentAmountInvalid, code: response.CodeBadRequest, key: "error.payment_amount_invalid"},
	{target: service.ErrAlreadySettledOrInvalid, code: response.CodeConflict, key: "error.order_status_invalid"},
	{target: service.ErrPaymentSessionFailed, code: response.CodeBadGateway, key: "error.payment_gateway_failed"},
}

func respondOrderCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCreateErrorRules, response.CodeInternal, "error.order_create_failed")
}

func respondOrderFetchError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderLookupErrorRules, response.CodeInternal, "error.order_fetch_failed")
}

func respondOrderCancelError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(orderLookupErrorRules, orderCancelErrorRules), response.CodeInternal, "error.order_cancel_failed")
}

func respondPaymentCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(orderLookupErrorRules, paymentCreateErrorRules), response.CodeInternal, "error.payment_create_failed")
}

func respondPaymentFetchError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderLookupErrorRules, response.CodeInternal, "error.payment_fetch_failed")
}
