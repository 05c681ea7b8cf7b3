package public

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dujiao-next/settlement/internal/payment"
	"github.com/dujiao-next/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	callbackBodyLimit     = 64 << 10
	callbackLogValueLimit = 4096
)

// PaymentCallback 支付异步通知入口，按 :method 分发到对应渠道
func (h *Handler) PaymentCallback(c *gin.Context) {
	method := strings.ToLower(strings.TrimSpace(c.Param("method")))
	contentType := strings.TrimSpace(c.GetHeader("Content-Type"))
	requestLog(c).Infow("payment_callback_received",
		"method", method,
		"client_ip", c.ClientIP(),
		"content_type", contentType,
	)

	form, err := parseCallbackForm(c)
	if err != nil {
		requestLog(c).Warnw("payment_callback_parse_failed", "method", method, "error", err)
		h.replyCallback(c, method, false)
		return
	}

	result, err := h.PaymentService.HandleCallback(c.Request.Context(), method, form)
	if err != nil {
		logFn := requestLog(c).Warnw
		if errors.Is(err, service.ErrInventoryExhausted) {
			logFn = requestLog(c).Errorw
		}
		logFn("payment_callback_failed",
			"method", method,
			"payload", callbackRawFormForLog(form),
			"error", err,
		)
		h.replyCallback(c, method, false)
		return
	}
	if result != nil && result.Order != nil {
		requestLog(c).Infow("payment_callback_settled",
			"method", method,
			"order_id", result.Order.ID,
			"order_no", result.Order.OrderNo,
			"duplicate", result.Duplicate,
		)
	}
	h.replyCallback(c, method, true)
}

func (h *Handler) replyCallback(c *gin.Context, method string, ok bool) {
	contentType, body := h.PaymentService.CallbackReply(method, ok)
	status := http.StatusOK
	if !ok {
		status = http.StatusBadRequest
	}
	c.Data(status, contentType, []byte(body))
}

// parseCallbackForm XML 报文（微信）解析为表单，其余读取 form + query
func parseCallbackForm(c *gin.Context) (map[string][]string, error) {
	if strings.Contains(strings.ToLower(c.GetHeader("Content-Type")), "xml") {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, callbackBodyLimit))
		if err != nil {
			return nil, err
		}
		params, err := payment.DecodeXML(body)
		if err != nil {
			return nil, err
		}
		return payment.ParamsToForm(params), nil
	}
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	form := url.Values{}
	for key, values := range c.Request.URL.Query() {
		form[key] = values
	}
	// 表单字段优先于 query
	for key, values := range c.Request.PostForm {
		form[key] = values
	}
	return form, nil
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

func callbackRawFormForLog(form map[string][]string) map[string]interface{} {
	result := make(map[string]interface{}, len(form))
	for key, values := range form {
		switch len(values) {
		case 0:
			result[key] = ""
		case 1:
			result[key] = truncateCallbackLogValue(values[0])
		default:
			copied := make([]string, 0, len(values))
			for _, value := range values {
				copied = append(copied, truncateCallbackLogValue(value))
			}
			result[key] = copied
		}
	}
	return result
}
