package models

import "time"

// Coupon 优惠券（本系统只读）
type Coupon struct {
	ID        uint       `gorm:"primarykey" json:"id"`                     // 主键
	Code      string     `gorm:"uniqueIndex;size:64;not null" json:"code"` // 优惠码
	Type      string     `gorm:"size:16;not null" json:"type"`             // 类型（percentage/fixed）
	Value     Money      `gorm:"type:decimal(20,2);not null" json:"value"` // 百分比或固定金额
	ExpireAt  *time.Time `gorm:"index" json:"expire_at"`                   // 过期时间，为空表示长期有效
	Status    int        `gorm:"not null;default:1" json:"status"`         // 状态（1 启用 / 0 停用）
	CreatedAt time.Time  `json:"created_at"`                               // 创建时间
	UpdatedAt time.Time  `json:"updated_at"`                               // 更新时间
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}
