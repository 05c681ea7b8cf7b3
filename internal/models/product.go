package models

import "time"

// Product 商品表（本系统只读价格与上架状态，仅累加销量）
type Product struct {
	ID         uint      `gorm:"primarykey" json:"id"`                               // 主键
	Name       string    `gorm:"size:255;not null" json:"name"`                      // 商品名称
	Price      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"price"` // 单价
	IsActive   bool      `gorm:"default:true;index" json:"is_active"`                // 是否上架
	SalesCount int       `gorm:"not null;default:0" json:"sales_count"`              // 累计销量
	CreatedAt  time.Time `json:"created_at"`                                         // 创建时间
	UpdatedAt  time.Time `json:"updated_at"`                                         // 更新时间

	AvailableCards int64 `gorm:"-" json:"available_cards"` // 可用卡密数量（查询时填充，不落库）
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
