package service

import (
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"
)

// OrderView 订单详情
type OrderView struct {
	ID             uint         `json:"id"`
	OrderNumber    string       `json:"order_number"`
	Status         string       `json:"status"`
	StatusID       int          `json:"status_id"`
	PaymentStatus  string       `json:"payment_status"`
	ProductID      uint         `json:"product_id"`
	ProductName    string       `json:"product_name"`
	Quantity       int          `json:"quantity"`
	UnitPrice      models.Money `json:"unit_price"`
	SubtotalAmount models.Money `json:"subtotal_amount"`
	DiscountAmount models.Money `json:"discount_amount"`
	TotalAmount    models.Money `json:"total_amount"`
	TotalCents     int64        `json:"total"`
	CurrencyCode   string       `json:"currency_code"`
	CouponCode     *string      `json:"coupon_code,omitempty"`
	CustomerEmail  string       `json:"customer_email"`
	CustomerPhone  string       `json:"customer_phone,omitempty"`
	PaymentMethod  string       `json:"payment_method"`
	TradeNo        *string      `json:"trade_no,omitempty"`
	IsPaid         bool         `json:"is_paid"`
	IsFulfilled    bool         `json:"is_fulfilled"`
	Cards          []CardView   `json:"cards"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
	CanceledAt     *time.Time   `json:"canceled_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CardView 已交付卡密
type CardView struct {
	ID         uint       `json:"id"`
	Secret     string     `json:"secret"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

// OrderStatusSnapshot 订单状态快照
type OrderStatusSnapshot struct {
	OrderID       uint   `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Total         int64  `json:"total"`
	IsPaid        bool   `json:"is_paid"`
	IsFulfilled   bool   `json:"is_fulfilled"`
}

// BuildOrderView 转换订单详情，卡密仅在已支付后返回
func BuildOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:             order.ID,
		OrderNumber:    order.OrderNo,
		Status:         OrderStatusName(order.Status),
		StatusID:       order.Status,
		PaymentStatus:  OrderPaymentStatusName(order.Status),
		ProductID:      order.ProductID,
		ProductName:    order.ProductName,
		Quantity:       order.Quantity,
		UnitPrice:      order.UnitPrice,
		SubtotalAmount: order.SubtotalAmount,
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
		TotalCents:     order.TotalAmount.Cents(),
		CurrencyCode:   currencyOrDefault(order.Currency),
		CouponCode:     order.CouponCode,
		CustomerEmail:  order.CustomerEmail,
		CustomerPhone:  order.CustomerPhone,
		PaymentMethod:  order.PaymentMethod,
		TradeNo:        order.TradeNo,
		IsPaid:         order.IsPaid(),
		IsFulfilled:    order.Fulfilled(),
		Cards:          []CardView{},
		ExpiresAt:      order.ExpiresAt,
		PaidAt:         order.PaidAt,
		CanceledAt:     order.CanceledAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	if order.IsPaid() {
		for _, card := range order.Cards {
			if card.Status != constants.CardStatusAssigned {
				continue
			}
			view.Cards = append(view.Cards, CardView{
				ID:         card.ID,
				Secret:     card.Secret,
				AssignedAt: card.AssignedAt,
			})
		}
	}
	return view
}

// BuildOrderStatusSnapshot 转换状态快照
func BuildOrderStatusSnapshot(order *models.Order) OrderStatusSnapshot {
	return OrderStatusSnapshot{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNo,
		Status:        OrderStatusName(order.Status),
		PaymentStatus: OrderPaymentStatusName(order.Status),
		Total:         order.TotalAmount.Cents(),
		IsPaid:        order.IsPaid(),
		IsFulfilled:   order.Fulfilled(),
	}
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return constants.CurrencyCNY
	}
	return currency
}
