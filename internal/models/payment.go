package models

import "time"

// Payment 支付会话记录
type Payment struct {
	ID              uint       `gorm:"primarykey" json:"id"`                           // 主键
	OrderID         uint       `gorm:"index;not null" json:"order_id"`                 // 订单ID
	SessionID       string     `gorm:"uniqueIndex;size:64;not null" json:"session_id"` // 会话ID
	Method          string     `gorm:"size:32;not null" json:"method"`                 // 支付方式
	Amount          Money      `gorm:"type:decimal(20,2);not null" json:"amount"`      // 支付金额
	Currency        string     `gorm:"size:8;not null" json:"currency"`                // 币种
	Status          string     `gorm:"size:16;index;not null" json:"status"`           // 支付状态
	ProviderRef     string     `gorm:"size:128;index" json:"provider_ref"`             // 第三方流水号
	ProviderPayload JSON       `gorm:"type:json" json:"provider_payload"`              // 第三方报文
	PayURL          string     `gorm:"type:text" json:"pay_url"`                       // 跳转链接
	QRCode          string     `gorm:"type:text" json:"qr_code"`                       // 二维码内容
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at"`                        // 会话过期时间
	PaidAt          *time.Time `gorm:"index" json:"paid_at"`                           // 支付时间
	CallbackAt      *time.Time `json:"callback_at"`                                    // 回调时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
