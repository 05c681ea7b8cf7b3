package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByIDWithCards(id uint) (*models.Order, error)
	GetByOrderNo(orderNo string) (*models.Order, error)
	GetByOrderNoWithCards(orderNo string) (*models.Order, error)
	TransitionStatus(id uint, from int, to int, updates map[string]interface{}) (int64, error)
	Update(id uint, updates map[string]interface{}) error
	ListExpiredPending(now time.Time, limit int) ([]models.Order, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

func (r *GormOrderRepository) withCards(query *gorm.DB) *gorm.DB {
	return query.Preload("Cards", func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", constants.CardStatusAssigned).Order("id asc")
	})
}

// Create 创建订单
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	return r.first(r.db, "id = ?", id)
}

// GetByIDWithCards 根据 ID 获取订单并预加载卡密
func (r *GormOrderRepository) GetByIDWithCards(id uint) (*models.Order, error) {
	return r.first(r.withCards(r.db), "id = ?", id)
}

// GetByOrderNo 根据订单号获取订单
func (r *GormOrderRepository) GetByOrderNo(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	return r.first(r.db, "order_no = ?", orderNo)
}

// GetByOrderNoWithCards 根据订单号获取订单并预加载卡密
func (r *GormOrderRepository) GetByOrderNoWithCards(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	return r.first(r.withCards(r.db), "order_no = ?", orderNo)
}

func (r *GormOrderRepository) first(query *gorm.DB, cond string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	if err := query.Where(cond, args...).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// TransitionStatus 条件更新订单状态（仅当当前状态为 from 时生效）
// 返回受影响行数，0 表示状态已被其他流程改变。
func (r *GormOrderRepository) TransitionStatus(id uint, from int, to int, updates map[string]interface{}) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	payload := map[string]interface{}{"status": to}
	for key, value := range updates {
		payload[key] = value
	}
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(payload)
	return result.RowsAffected, result.Error
}

// Update 更新订单非状态字段
func (r *GormOrderRepository) Update(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["status"]; ok {
		return errors.New("status must be changed through TransitionStatus")
	}
	return r.db.Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

// ListExpiredPending 获取已过期仍待支付的订单
func (r *GormOrderRepository) ListExpiredPending(now time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	if err := r.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", constants.OrderStatusPending, now).
		Order("id asc").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
