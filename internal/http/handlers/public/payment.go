package public

import (
	"github.com/dujiao-next/settlement/internal/http/response"
	"github.com/dujiao-next/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePaymentRequest 创建支付会话请求，method 也可以通过 query 传入
type CreatePaymentRequest struct {
	Method    string `json:"method" form:"method"`
	ReturnURL string `json:"return_url" form:"return_url"`
	NotifyURL string `json:"notify_url" form:"notify_url"`
}

// CreatePayment 发起支付，返回跳转地址或二维码
func (h *Handler) CreatePayment(c *gin.Context) {
	orderID, ok := parseOrderID(c, "orderId")
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	if req.Method == "" {
		req.Method = c.Query("method")
	}

	result, err := h.PaymentService.CreateSession(c.Request.Context(), service.CreateSessionInput{
		OrderID:   orderID,
		Method:    req.Method,
		ReturnURL: req.ReturnURL,
		NotifyURL: req.NotifyURL,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		respondPaymentCreateError(c, err)
		return
	}
	response.Success(c, result)
}

// GetPaymentStatus 查询订单支付状态
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	orderID, ok := parseOrderID(c, "orderId")
	if !ok {
		return
	}
	view, err := h.PaymentService.GetPaymentStatus(c.Request.Context(), orderID)
	if err != nil {
		respondPaymentFetchError(c, err)
		return
	}
	response.Success(c, view)
}
