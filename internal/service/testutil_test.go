package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"
	"github.com/dujiao-next/settlement/internal/queue"
	"github.com/dujiao-next/settlement/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeQueue struct {
	mu       sync.Mutex
	timeouts []queue.OrderTimeoutCancelPayload
	delays   []time.Duration
	paid     []queue.OrderPaidPayload
	alerts   []queue.InventoryAlertPayload
}

func (q *fakeQueue) EnqueueOrderTimeoutCancel(payload queue.OrderTimeoutCancelPayload, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.timeouts = append(q.timeouts, payload)
	q.delays = append(q.delays, delay)
	return nil
}

func (q *fakeQueue) EnqueueOrderPaid(payload queue.OrderPaidPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paid = append(q.paid, payload)
	return nil
}

func (q *fakeQueue) EnqueueInventoryAlert(payload queue.InventoryAlertPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.alerts = append(q.alerts, payload)
	return nil
}

func (q *fakeQueue) counts() (int, int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timeouts), len(q.paid), len(q.alerts)
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	sets int
	// beforeSet 在写入前执行，用于模拟读取与状态变更交错
	beforeSet  func(key string)
	setCtxErrs []error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetJSON(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook(key)
	}
	c.mu.Lock()
	c.setCtxErrs = append(c.setCtxErrs, ctx.Err())
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type testEnv struct {
	db         *gorm.DB
	queue      *fakeQueue
	cache      *fakeCache
	orders     *OrderService
	settlement *SettlementService
	payments   *PaymentService
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

func newTestEnv(t *testing.T, paymentCfg config.PaymentConfig, selector AdapterSelector) *testEnv {
	t.Helper()
	db := setupServiceTestDB(t)
	q := &fakeQueue{}
	c := newFakeCache()

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	cardRepo := repository.NewCardRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	couponRepo := repository.NewCouponRepository(db)

	orders := NewOrderService(OrderServiceDeps{
		DB:          db,
		OrderRepo:   orderRepo,
		ProductRepo: productRepo,
		CardRepo:    cardRepo,
		PaymentRepo: paymentRepo,
		CouponSvc:   NewCouponService(couponRepo),
		Queue:       q,
		Cache:       c,
	}, OrderServiceOptions{
		ExpireMinutes:  30,
		OrderNoPrefix:  "T",
		StatusCacheTTL: time.Minute,
		PublicBaseURL:  "https://shop.example.com/",
	})
	settlement := NewSettlementService(SettlementServiceDeps{
		DB:          db,
		OrderRepo:   orderRepo,
		CardRepo:    cardRepo,
		ProductRepo: productRepo,
		PaymentRepo: paymentRepo,
		Queue:       q,
		Cache:       c,
	})
	payments := NewPaymentService(PaymentServiceDeps{
		DB:          db,
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
		Settlement:  settlement,
		Cache:       c,
		Selector:    selector,
	}, paymentCfg)
	return &testEnv{
		db:         db,
		queue:      q,
		cache:      c,
		orders:     orders,
		settlement: settlement,
		payments:   payments,
	}
}

func seedProduct(t *testing.T, db *gorm.DB, price string, cards int) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:     "月卡",
		Price:    models.NewMoneyFromDecimal(decimal.RequireFromString(price)),
		IsActive: true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	for i := 0; i < cards; i++ {
		card := &models.Card{
			ProductID: product.ID,
			Secret:    fmt.Sprintf("CARD-%d-%d", product.ID, i),
			Status:    constants.CardStatusAvailable,
		}
		if err := db.Create(card).Error; err != nil {
			t.Fatalf("create card failed: %v", err)
		}
	}
	return product
}

func seedCoupon(t *testing.T, db *gorm.DB, code, couponType, value string, expireAt *time.Time) *models.Coupon {
	t.Helper()
	coupon := &models.Coupon{
		Code:     code,
		Type:     couponType,
		Value:    models.NewMoneyFromDecimal(decimal.RequireFromString(value)),
		ExpireAt: expireAt,
		Status:   constants.CouponStatusActive,
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	return coupon
}

func createTestOrder(t *testing.T, env *testEnv, productID uint, quantity int, couponCode string) *models.Order {
	t.Helper()
	result, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ProductID:     productID,
		Quantity:      quantity,
		CustomerEmail: "buyer@example.com",
		PaymentMethod: constants.PaymentMethodPayJS,
		CouponCode:    couponCode,
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return result.Order
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.Preload("Cards").First(&order, id).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return &order
}

func countCards(t *testing.T, db *gorm.DB, productID uint, status int) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Card{}).Where("product_id = ? AND status = ?", productID, status).Count(&count).Error; err != nil {
		t.Fatalf("count cards failed: %v", err)
	}
	return count
}

func salesCount(t *testing.T, db *gorm.DB, productID uint) int {
	t.Helper()
	var product models.Product
	if err := db.First(&product, productID).Error; err != nil {
		t.Fatalf("load product failed: %v", err)
	}
	return product.SalesCount
}
