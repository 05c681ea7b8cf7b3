package repository

import (
	"errors"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetBySessionID(sessionID string) (*models.Payment, error)
	GetLatestByOrder(orderID uint) (*models.Payment, error)
	GetLatestPendingByOrder(orderID uint, method string, now time.Time) (*models.Payment, error)
	MarkSuccessByOrder(orderID uint, providerRef string, payload models.JSON, paidAt time.Time) (int64, error)
	ExpirePendingByOrder(orderID uint, at time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetBySessionID 根据会话 ID 获取支付记录
func (r *GormPaymentRepository) GetBySessionID(sessionID string) (*models.Payment, error) {
	if sessionID == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("session_id = ?", sessionID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetLatestByOrder 获取订单最新支付记录
func (r *GormPaymentRepository) GetLatestByOrder(orderID uint) (*models.Payment, error) {
	if orderID == 0 {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("order_id = ?", orderID).Order("id desc").First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetLatestPendingByOrder 获取订单指定支付方式下未过期的待支付记录
func (r *GormPaymentRepository) GetLatestPendingByOrder(orderID uint, method string, now time.Time) (*models.Payment, error) {
	if orderID == 0 {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("order_id = ? AND method = ? AND status = ?", orderID, method, constants.PaymentStatusPending).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("id desc").
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// MarkSuccessByOrder 将订单最新的待支付记录标记为成功
// 没有待支付记录时返回 0，结算不依赖支付记录存在。
func (r *GormPaymentRepository) MarkSuccessByOrder(orderID uint, providerRef string, payload models.JSON, paidAt time.Time) (int64, error) {
	if orderID == 0 {
		return 0, nil
	}
	var payment models.Payment
	if err := r.db.Where("order_id = ? AND status = ?", orderID, constants.PaymentStatusPending).
		Order("id desc").
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	updates := map[string]interface{}{
		"status":      constants.PaymentStatusSuccess,
		"paid_at":     paidAt,
		"callback_at": paidAt,
		"updated_at":  paidAt,
	}
	if providerRef != "" {
		updates["provider_ref"] = providerRef
	}
	if payload != nil {
		updates["provider_payload"] = payload
	}
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, constants.PaymentStatusPending).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// ExpirePendingByOrder 订单取消时作废未完成的支付会话
func (r *GormPaymentRepository) ExpirePendingByOrder(orderID uint, at time.Time) (int64, error) {
	if orderID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, constants.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":     constants.PaymentStatusExpired,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}
