package main

import (
	"fmt"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedProduct struct {
	Name  string
	Price string
	Cards int
}

type seedCoupon struct {
	Code      string
	Type      string
	Value     string
	ExpireDay int // 0 表示长期有效
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	db, err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	})
	if err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(db); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	products := []seedProduct{
		{Name: "视频会员月卡", Price: "25.00", Cards: 20},
		{Name: "视频会员季卡", Price: "68.00", Cards: 10},
		{Name: "游戏点卡 100 点", Price: "10.00", Cards: 50},
		{Name: "云盘年卡", Price: "198.00", Cards: 0}, // 用于演示库存不足
	}
	for _, item := range products {
		product, created, err := ensureProduct(db, item)
		if err != nil {
			stdLog.Printf("Failed to seed product %s: %v", item.Name, err)
			continue
		}
		if !created {
			stdLog.Printf("Product already exists: %s", item.Name)
			continue
		}
		if err := seedCards(db, product.ID, item.Cards); err != nil {
			stdLog.Printf("Failed to seed cards for %s: %v", item.Name, err)
			continue
		}
		stdLog.Printf("Created product: %s (id=%d, cards=%d)", item.Name, product.ID, item.Cards)
	}

	coupons := []seedCoupon{
		{Code: "WELCOME10", Type: constants.CouponTypePercentage, Value: "10"},
		{Code: "MINUS5", Type: constants.CouponTypeFixed, Value: "5.00", ExpireDay: 30},
		{Code: "FREEBIE", Type: constants.CouponTypeFixed, Value: "1000.00", ExpireDay: 7},
	}
	for _, item := range coupons {
		created, err := ensureCoupon(db, item)
		if err != nil {
			stdLog.Printf("Failed to seed coupon %s: %v", item.Code, err)
			continue
		}
		if created {
			stdLog.Printf("Created coupon: %s", item.Code)
		} else {
			stdLog.Printf("Coupon already exists: %s", item.Code)
		}
	}

	stdLog.Printf("Seed completed")
}

func ensureProduct(db *gorm.DB, item seedProduct) (*models.Product, bool, error) {
	var existing models.Product
	err := db.Where("name = ?", item.Name).Limit(1).Find(&existing).Error
	if err != nil {
		return nil, false, err
	}
	if existing.ID != 0 {
		return &existing, false, nil
	}
	product := models.Product{
		Name:     item.Name,
		Price:    models.NewMoneyFromDecimal(decimal.RequireFromString(item.Price)),
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		return nil, false, err
	}
	return &product, true, nil
}

func seedCards(db *gorm.DB, productID uint, count int) error {
	if count <= 0 {
		return nil
	}
	cards := make([]models.Card, 0, count)
	for i := 0; i < count; i++ {
		cards = append(cards, models.Card{
			ProductID: productID,
			Secret:    fmt.Sprintf("DEMO-%d-%s", productID, uuid.NewString()),
			Status:    constants.CardStatusAvailable,
		})
	}
	return db.CreateInBatches(&cards, 100).Error
}

func ensureCoupon(db *gorm.DB, item seedCoupon) (bool, error) {
	var count int64
	if err := db.Model(&models.Coupon{}).Where("code = ?", item.Code).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	coupon := models.Coupon{
		Code:   item.Code,
		Type:   item.Type,
		Value:  models.NewMoneyFromDecimal(decimal.RequireFromString(item.Value)),
		Status: constants.CouponStatusActive,
	}
	if item.ExpireDay > 0 {
		expireAt := time.Now().AddDate(0, 0, item.ExpireDay)
		coupon.ExpireAt = &expireAt
	}
	if err := db.Create(&coupon).Error; err != nil {
		return false, err
	}
	return true, nil
}
