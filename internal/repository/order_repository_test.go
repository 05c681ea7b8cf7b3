package repository

import (
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
)

func TestOrderRepositoryTransitionStatusIsConditional(t *testing.T) {
	db := setupRepositoryTestDB(t)
	product := seedProductWithCards(t, db, 50, 0)
	order := seedPendingOrder(t, db, product, "DJK-TRANS-1", 1)
	repo := NewOrderRepository(db)

	now := time.Now()
	affected, err := repo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, map[string]interface{}{
		"trade_no": "T1",
		"paid_at":  now,
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected want 1 got %d", affected)
	}

	affected, err = repo.TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusCancelled, nil)
	if err != nil {
		t.Fatalf("second transition failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("stale transition should affect 0 rows, got %d", affected)
	}

	got, err := repo.GetByOrderNo("DJK-TRANS-1")
	if err != nil {
		t.Fatalf("get by order no failed: %v", err)
	}
	if got == nil || got.Status != constants.OrderStatusPaid {
		t.Fatalf("order should be paid, got %+v", got)
	}
	if got.TradeNo == nil || *got.TradeNo != "T1" {
		t.Fatalf("trade no want T1 got %v", got.TradeNo)
	}
}

func TestOrderRepositoryNotFoundReturnsNil(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewOrderRepository(db)
	got, err := repo.GetByID(999)
	if err != nil {
		t.Fatalf("get missing order failed: %v", err)
	}
	if got != nil {
		t.Fatalf("missing order should be nil")
	}
	if got, _ := repo.GetByOrderNo("  "); got != nil {
		t.Fatalf("blank order no should be nil")
	}
}

func TestOrderRepositoryUniqueOrderNo(t *testing.T) {
	db := setupRepositoryTestDB(t)
	product := seedProductWithCards(t, db, 50, 0)
	first := seedPendingOrder(t, db, product, "DJK-DUP", 1)
	dup := *first
	dup.ID = 0
	err := NewOrderRepository(db).Create(&dup)
	if !IsUniqueViolation(err) {
		t.Fatalf("duplicate order no should be unique violation, got %v", err)
	}
}

func TestOrderRepositoryUpdateRejectsStatus(t *testing.T) {
	db := setupRepositoryTestDB(t)
	product := seedProductWithCards(t, db, 50, 0)
	order := seedPendingOrder(t, db, product, "DJK-UPD", 1)
	if err := NewOrderRepository(db).Update(order.ID, map[string]interface{}{"status": constants.OrderStatusPaid}); err == nil {
		t.Fatalf("status update through Update should fail")
	}
}

func TestOrderRepositoryListExpiredPending(t *testing.T) {
	db := setupRepositoryTestDB(t)
	product := seedProductWithCards(t, db, 50, 0)
	expired := seedPendingOrder(t, db, product, "DJK-EXP-1", 1)
	fresh := seedPendingOrder(t, db, product, "DJK-EXP-2", 1)
	now := time.Now()
	repo := NewOrderRepository(db)
	if err := repo.Update(expired.ID, map[string]interface{}{"expires_at": now.Add(-time.Minute)}); err != nil {
		t.Fatalf("update expired failed: %v", err)
	}
	if err := repo.Update(fresh.ID, map[string]interface{}{"expires_at": now.Add(time.Hour)}); err != nil {
		t.Fatalf("update fresh failed: %v", err)
	}
	orders, err := repo.ListExpiredPending(now, 10)
	if err != nil {
		t.Fatalf("list expired failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != expired.ID {
		t.Fatalf("expired list want [%d] got %+v", expired.ID, orders)
	}
}
