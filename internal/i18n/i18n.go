// Package i18n 接口错误消息的多语言文案
package i18n

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	LocaleZhCN = "zh-CN"
	LocaleEnUS = "en-US"

	// DefaultLocale 无法识别时使用
	DefaultLocale = LocaleZhCN
)

var messages = map[string]map[string]string{
	LocaleZhCN: {
		"error.bad_request":                 "请求参数错误",
		"error.unauthorized":                "未授权",
		"error.forbidden":                   "禁止访问",
		"error.not_found":                   "资源不存在",
		"error.too_many_requests":           "请求过于频繁，请稍后再试",
		"error.internal":                    "服务器内部错误",
		"error.order_id_invalid":            "订单 ID 无效",
		"error.order_not_found":             "订单不存在",
		"error.order_fetch_failed":          "获取订单失败",
		"error.order_create_failed":         "创建订单失败",
		"error.order_cancel_failed":         "取消订单失败",
		"error.order_status_invalid":        "订单状态不允许该操作",
		"error.order_no_exhausted":          "订单号生成失败，请重试",
		"error.quantity_invalid":            "购买数量无效",
		"error.product_not_available":       "商品不可购买",
		"error.stock_insufficient":          "库存不足",
		"error.email_invalid":               "邮箱格式错误",
		"error.phone_invalid":               "手机号格式错误",
		"error.payment_method_unsupported":  "不支持的支付方式",
		"error.payment_amount_invalid":      "订单金额无效，无法发起支付",
		"error.payment_provider_not_config": "支付方式未配置",
		"error.payment_create_failed":       "创建支付失败",
		"error.payment_gateway_failed":      "支付网关请求失败",
		"error.payment_fetch_failed":        "获取支付状态失败",
		"error.rate_limited":                "请求过于频繁，请 %d 秒后再试",
		"error.rate_limit_unavailable":      "限流服务不可用",
	},
	LocaleEnUS: {
		"error.bad_request":                 "Invalid request parameters",
		"error.unauthorized":                "Unauthorized",
		"error.forbidden":                   "Forbidden",
		"error.not_found":                   "Resource not found",
		"error.too_many_requests":           "Too many requests, please try again later",
		"error.internal":                    "Internal server error",
		"error.order_id_invalid":            "Invalid order id",
		"error.order_not_found":             "Order not found",
		"error.order_fetch_failed":          "Failed to fetch order",
		"error.order_create_failed":         "Failed to create order",
		"error.order_cancel_failed":         "Failed to cancel order",
		"error.order_status_invalid":        "Order status does not allow this operation",
		"error.order_no_exhausted":          "Failed to allocate an order number, please retry",
		"error.quantity_invalid":            "Invalid quantity",
		"error.product_not_available":       "Product is not available",
		"error.stock_insufficient":          "Insufficient stock",
		"error.email_invalid":               "Invalid email address",
		"error.phone_invalid":               "Invalid phone number",
		"error.payment_method_unsupported":  "Unsupported payment method",
		"error.payment_amount_invalid":      "Order amount is not payable",
		"error.payment_provider_not_config": "Payment method is not configured",
		"error.payment_create_failed":       "Failed to create payment",
		"error.payment_gateway_failed":      "Payment gateway request failed",
		"error.payment_fetch_failed":        "Failed to fetch payment status",
		"error.rate_limited":                "Too many requests, retry in %d seconds",
		"error.rate_limit_unavailable":      "Rate limiter unavailable",
	},
}

// T 翻译，缺失时回退默认语言，再回退 key 本身
func T(locale, key string) string {
	if table, ok := messages[locale]; ok {
		if msg, ok := table[key]; ok {
			return msg
		}
	}
	if msg, ok := messages[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Sprintf 翻译后按参数格式化
func Sprintf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}

// ResolveLocale 依次读取 ?lang=、X-Locale、Accept-Language
func ResolveLocale(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return DefaultLocale
	}
	candidates := []string{
		c.Query("lang"),
		c.GetHeader("X-Locale"),
	}
	for _, part := range strings.Split(c.GetHeader("Accept-Language"), ",") {
		if idx := strings.Index(part, ";"); idx >= 0 {
			part = part[:idx]
		}
		candidates = append(candidates, part)
	}
	for _, candidate := range candidates {
		if locale := normalizeLocale(candidate); locale != "" {
			return locale
		}
	}
	return DefaultLocale
}

func normalizeLocale(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "zh"):
		return LocaleZhCN
	case strings.HasPrefix(raw, "en"):
		return LocaleEnUS
	}
	return ""
}
