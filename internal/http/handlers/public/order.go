package public

import (
	"strings"

	"github.com/dujiao-next/settlement/internal/http/response"
	"github.com/dujiao-next/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	ProductID     uint   `json:"product_id" binding:"required"`
	Quantity      *int   `json:"quantity"`
	CustomerEmail string `json:"customer_email" binding:"required"`
	CustomerPhone string `json:"customer_phone"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	CouponCode    string `json:"coupon_code"`
}

// CreateOrder 创建订单
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	// 仅在未传时默认 1，显式 0 交给服务层校验
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	result, err := h.OrderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		ProductID:     req.ProductID,
		Quantity:      quantity,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    strings.TrimSpace(req.CouponCode),
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		respondOrderCreateError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order":       service.BuildOrderView(result.Order),
		"payment_url": result.PaymentURL,
	})
}

// CustomerCredential 买家凭证，与下单邮箱一致才可查看卡密或取消
type CustomerCredential struct {
	Email string `json:"email" form:"email"`
}

// customerEmail 依次读取 query 与 JSON body 中的 email
func customerEmail(c *gin.Context) string {
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		return email
	}
	var cred CustomerCredential
	if c.Request.ContentLength > 0 {
		_ = c.ShouldBindJSON(&cred)
	}
	return strings.TrimSpace(cred.Email)
}

// GetOrder 订单详情（已支付时包含卡密），需提供下单邮箱
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetCustomerOrder(c.Request.Context(), orderID, customerEmail(c))
	if err != nil {
		respondOrderFetchError(c, err)
		return
	}
	response.Success(c, service.BuildOrderView(order))
}

// GetOrderByNo 按订单号查询，需提供下单邮箱
func (h *Handler) GetOrderByNo(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("orderNo"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	order, err := h.OrderService.GetCustomerOrderByNo(c.Request.Context(), orderNo, customerEmail(c))
	if err != nil {
		respondOrderFetchError(c, err)
		return
	}
	response.Success(c, service.BuildOrderView(order))
}

// GetOrderStatus 订单状态快照，供前端轮询
func (h *Handler) GetOrderStatus(c *gin.Context) {
	orderID, ok := parseOrderID(c, "id")
	if !ok {
		return
	}
	snapshot, err := h.OrderService.GetOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		respondOrderFetchError(c, err)
		return
	}
	response.Success(c, snapshot)
}

// CancelOrder 取消待支付订单，需提供下单邮箱
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.CancelCustomerOrder(c.Request.Context(), orderID, customerEmail(c))
	if err != nil {
		respondOrderCancelError(c, err)
		return
	}
	response.Success(c, service.BuildOrderView(order))
}
