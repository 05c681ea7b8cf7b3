package models

import "time"

// Card 卡密库存表
// 卡密由外部库存工具导入，本系统只负责查询与占用。
type Card struct {
	ID         uint       `gorm:"primarykey" json:"id"`                                                       // 主键
	ProductID  uint       `gorm:"not null;index:idx_cards_product_status,priority:1" json:"product_id"`       // 商品ID
	Secret     string     `gorm:"type:text;not null" json:"secret"`                                           // 卡密内容
	Status     int        `gorm:"not null;default:1;index:idx_cards_product_status,priority:2" json:"status"` // 状态（1 可用 / 2 已分配）
	OrderID    *uint      `gorm:"index" json:"order_id,omitempty"`                                            // 所属订单
	AssignedAt *time.Time `json:"assigned_at,omitempty"`                                                      // 分配时间
	CreatedAt  time.Time  `json:"created_at"`                                                                 // 创建时间
	UpdatedAt  time.Time  `json:"updated_at"`                                                                 // 更新时间
}

// TableName 指定表名
func (Card) TableName() string {
	return "cards"
}
