package models

import (
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
)

// Order 订单表
// 订单只会被取消或标记失败，不做物理删除，便于对账审计。
type Order struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                         // 主键
	OrderNo        string     `gorm:"uniqueIndex;size:64;not null" json:"order_no"`                 // 订单编号
	ProductID      uint       `gorm:"index;not null" json:"product_id"`                             // 商品ID
	ProductName    string     `gorm:"size:255;not null" json:"product_name"`                        // 下单时商品名称快照
	Quantity       int        `gorm:"not null" json:"quantity"`                                     // 购买数量
	UnitPrice      Money      `gorm:"type:decimal(20,2);not null" json:"unit_price"`                // 下单时单价快照
	SubtotalAmount Money      `gorm:"type:decimal(20,2);not null" json:"subtotal_amount"`           // 单价 * 数量
	DiscountAmount Money      `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"` // 优惠金额
	TotalAmount    Money      `gorm:"type:decimal(20,2);not null" json:"total_amount"`              // 实付金额
	Currency       string     `gorm:"size:8;not null" json:"currency"`                              // 币种
	CouponCode     *string    `gorm:"size:64" json:"coupon_code,omitempty"`                         // 使用的优惠码
	CustomerEmail  string     `gorm:"size:255;index;not null" json:"customer_email"`                // 联系邮箱
	CustomerPhone  string     `gorm:"size:32" json:"customer_phone,omitempty"`                      // 联系电话
	PaymentMethod  string     `gorm:"size:32;not null" json:"payment_method"`                       // 支付方式
	TradeNo        *string    `gorm:"size:128;index" json:"trade_no,omitempty"`                     // 第三方交易号（结算后写入）
	Status         int        `gorm:"index;not null;default:1" json:"status"`                       // 订单状态
	ClientIP       string     `gorm:"size:64" json:"client_ip,omitempty"`                           // 下单客户端IP
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at"`                                      // 待支付过期时间
	PaidAt         *time.Time `gorm:"index" json:"paid_at"`                                         // 支付时间
	CanceledAt     *time.Time `gorm:"index" json:"canceled_at"`                                     // 取消时间
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt      time.Time  `json:"updated_at"`                                                   // 更新时间

	Cards []Card `gorm:"foreignKey:OrderID" json:"cards,omitempty"` // 已分配卡密
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// IsPending 是否待支付
func (o *Order) IsPending() bool {
	return o != nil && o.Status == constants.OrderStatusPending
}

// IsPaid 是否已支付
func (o *Order) IsPaid() bool {
	return o != nil && o.Status == constants.OrderStatusPaid
}

// Fulfilled 已支付且卡密数量与购买数量一致
// 需要预加载 Cards。
func (o *Order) Fulfilled() bool {
	if !o.IsPaid() {
		return false
	}
	assigned := 0
	for _, card := range o.Cards {
		if card.Status == constants.CardStatusAssigned {
			assigned++
		}
	}
	return assigned == o.Quantity
}
