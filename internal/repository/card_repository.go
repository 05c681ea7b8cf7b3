package repository

import (
	"errors"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"

	"gorm.io/gorm"
)

// maxClaimRounds 候选卡密被并发事务抢走时的最大补选轮数
const maxClaimRounds = 3

// CardRepository 卡密数据访问接口
type CardRepository interface {
	CountAvailable(productID uint) (int64, error)
	ClaimAvailable(productID uint, orderID uint, quantity int, claimedAt time.Time) (int64, error)
	ListByOrder(orderID uint) ([]models.Card, error)
	CreateBatch(cards []models.Card) error
	WithTx(tx *gorm.DB) *GormCardRepository
}

// GormCardRepository GORM 实现
type GormCardRepository struct {
	db *gorm.DB
}

// NewCardRepository 创建卡密仓库
func NewCardRepository(db *gorm.DB) *GormCardRepository {
	return &GormCardRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCardRepository) WithTx(tx *gorm.DB) *GormCardRepository {
	if tx == nil {
		return r
	}
	return &GormCardRepository{db: tx}
}

// CountAvailable 统计可用卡密
func (r *GormCardRepository) CountAvailable(productID uint) (int64, error) {
	if productID == 0 {
		return 0, errors.New("invalid product id")
	}
	var count int64
	if err := r.db.Model(&models.Card{}).
		Where("product_id = ? AND status = ?", productID, constants.CardStatusAvailable).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ClaimAvailable 为订单占用 quantity 张可用卡密，返回实际占用数量
// 调用方须在事务内执行，数量不足时整体回滚。
func (r *GormCardRepository) ClaimAvailable(productID uint, orderID uint, quantity int, claimedAt time.Time) (int64, error) {
	if productID == 0 || orderID == 0 || quantity <= 0 {
		return 0, nil
	}
	var claimed int64
	for round := 0; round < maxClaimRounds && claimed < int64(quantity); round++ {
		need := quantity - int(claimed)
		var ids []uint
		if err := withSkipLocked(r.db.Model(&models.Card{})).
			Where("product_id = ? AND status = ?", productID, constants.CardStatusAvailable).
			Order("id asc").
			Limit(need).
			Pluck("id", &ids).Error; err != nil {
			return claimed, err
		}
		if len(ids) == 0 {
			break
		}
		result := r.db.Model(&models.Card{}).
			Where("id IN ? AND status = ?", ids, constants.CardStatusAvailable).
			Updates(map[string]interface{}{
				"status":      constants.CardStatusAssigned,
				"order_id":    orderID,
				"assigned_at": claimedAt,
				"updated_at":  claimedAt,
			})
		if result.Error != nil {
			return claimed, result.Error
		}
		claimed += result.RowsAffected
	}
	return claimed, nil
}

// ListByOrder 获取订单已分配的卡密
func (r *GormCardRepository) ListByOrder(orderID uint) ([]models.Card, error) {
	if orderID == 0 {
		return []models.Card{}, nil
	}
	var cards []models.Card
	if err := r.db.Where("order_id = ? AND status = ?", orderID, constants.CardStatusAssigned).
		Order("id asc").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// CreateBatch 批量导入卡密
func (r *GormCardRepository) CreateBatch(cards []models.Card) error {
	if len(cards) == 0 {
		return nil
	}
	return r.db.CreateInBatches(&cards, 200).Error
}
