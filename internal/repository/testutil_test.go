package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repository_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func seedProductWithCards(t *testing.T, db *gorm.DB, price int64, cards int) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:     "测试商品",
		Price:    models.NewMoneyFromDecimal(decimal.NewFromInt(price)),
		IsActive: true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	for i := 0; i < cards; i++ {
		card := &models.Card{
			ProductID: product.ID,
			Secret:    fmt.Sprintf("SECRET-%d-%d", product.ID, i),
			Status:    constants.CardStatusAvailable,
		}
		if err := db.Create(card).Error; err != nil {
			t.Fatalf("create card failed: %v", err)
		}
	}
	return product
}

func seedPendingOrder(t *testing.T, db *gorm.DB, product *models.Product, orderNo string, quantity int) *models.Order {
	t.Helper()
	total := product.Price.Decimal.Mul(decimal.NewFromInt(int64(quantity)))
	order := &models.Order{
		OrderNo:        orderNo,
		ProductID:      product.ID,
		ProductName:    product.Name,
		Quantity:       quantity,
		UnitPrice:      product.Price,
		SubtotalAmount: models.NewMoneyFromDecimal(total),
		TotalAmount:    models.NewMoneyFromDecimal(total),
		Currency:       constants.CurrencyCNY,
		CustomerEmail:  "buyer@example.com",
		PaymentMethod:  constants.PaymentMethodAlipay,
		Status:         constants.OrderStatusPending,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}
