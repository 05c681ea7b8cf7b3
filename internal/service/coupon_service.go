package service

import (
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/repository"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CouponDiscount 已解析的优惠规则
type CouponDiscount struct {
	Code  string
	Type  string
	Value decimal.Decimal
}

// CouponService 优惠码解析（只读）
type CouponService struct {
	couponRepo repository.CouponRepository
	now        func() time.Time
}

// NewCouponService 创建优惠码服务
func NewCouponService(couponRepo repository.CouponRepository) *CouponService {
	return &CouponService{
		couponRepo: couponRepo,
		now:        time.Now,
	}
}

// Resolve 解析优惠码
// 不存在、停用、过期或读取失败都视为不优惠，返回 nil。
func (s *CouponService) Resolve(code string) *CouponDiscount {
	code = strings.TrimSpace(code)
	if code == "" || s == nil || s.couponRepo == nil {
		return nil
	}
	coupon, err := s.couponRepo.GetByCode(code)
	if err != nil {
		logger.Warnw("coupon_resolve_failed", "coupon_code", code, "error", err)
		return nil
	}
	if coupon == nil || coupon.Status != constants.CouponStatusActive {
		return nil
	}
	if coupon.ExpireAt != nil && !s.now().Before(*coupon.ExpireAt) {
		return nil
	}
	switch coupon.Type {
	case constants.CouponTypePercentage, constants.CouponTypeFixed:
	default:
		return nil
	}
	return &CouponDiscount{
		Code:  coupon.Code,
		Type:  coupon.Type,
		Value: coupon.Value.Decimal,
	}
}

// Amount 计算优惠金额，结果落在 [0, subtotal] 内
func (d *CouponDiscount) Amount(subtotal decimal.Decimal) decimal.Decimal {
	if d == nil || !subtotal.IsPositive() || !d.Value.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch d.Type {
	case constants.CouponTypePercentage:
		discount = subtotal.Mul(d.Value).Div(hundred).Round(2)
	case constants.CouponTypeFixed:
		discount = d.Value.Round(2)
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// orderPricing 订单金额
type orderPricing struct {
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// computeOrderPricing total = unit_price * quantity - discount
func computeOrderPricing(unitPrice decimal.Decimal, quantity int, coupon *CouponDiscount) orderPricing {
	unitPrice = unitPrice.Round(2)
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	discount := coupon.Amount(subtotal)
	return orderPricing{
		UnitPrice: unitPrice,
		Subtotal:  subtotal,
		Discount:  discount,
		Total:     subtotal.Sub(discount),
	}
}
