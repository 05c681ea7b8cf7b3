package repository

import (
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/models"
)

func TestPaymentRepositoryMarkSuccessByOrder(t *testing.T) {
	db := setupRepositoryTestDB(t)
	product := seedProductWithCards(t, db, 50, 0)
	order := seedPendingOrder(t, db, product, "DJK-PAY-1", 1)
	repo := NewPaymentRepository(db)

	now := time.Now()
	expires := now.Add(30 * time.Minute)
	payment := &models.Payment{
		OrderID:   order.ID,
		SessionID: "session-1",
		Method:    constants.PaymentMethodAlipay,
		Amount:    order.TotalAmount,
		Currency:  constants.CurrencyCNY,
		Status:    constants.PaymentStatusPending,
		ExpiresAt: &expires,
	}
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	pending, err := repo.GetLatestPendingByOrder(order.ID, constants.PaymentMethodAlipay, now)
	if err != nil || pending == nil {
		t.Fatalf("pending payment should be found, got=%v err=%v", pending, err)
	}
	if other, _ := repo.GetLatestPendingByOrder(order.ID, constants.PaymentMethodWechat, now); other != nil {
		t.Fatalf("pending payment of another method should not match")
	}

	affected, err := repo.MarkSuccessByOrder(order.ID, "TRADE-1", models.JSON{"trade_no": "TRADE-1"}, now)
	if err != nil {
		t.Fatalf("mark success failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected want 1 got %d", affected)
	}
	got, err := repo.GetBySessionID("session-1")
	if err != nil {
		t.Fatalf("get by session failed: %v", err)
	}
	if got.Status != constants.PaymentStatusSuccess || got.ProviderRef != "TRADE-1" {
		t.Fatalf("payment not updated: %+v", got)
	}
	if got.ProviderPayload["trade_no"] != "TRADE-1" {
		t.Fatalf("provider payload not stored: %+v", got.ProviderPayload)
	}

	affected, err = repo.MarkSuccessByOrder(order.ID, "TRADE-1", nil, now)
	if err != nil {
		t.Fatalf("second mark failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("second mark should affect 0 rows got %d", affected)
	}
}

func TestPaymentRepositoryExpirePendingByOrder(t *testing.T) {
	db := setupRepositoryTestDB(t)
	product := seedProductWithCards(t, db, 50, 0)
	order := seedPendingOrder(t, db, product, "DJK-PAY-2", 1)
	repo := NewPaymentRepository(db)
	for _, sid := range []string{"s-a", "s-b"} {
		if err := repo.Create(&models.Payment{
			OrderID:   order.ID,
			SessionID: sid,
			Method:    constants.PaymentMethodPayJS,
			Amount:    order.TotalAmount,
			Currency:  constants.CurrencyCNY,
			Status:    constants.PaymentStatusPending,
		}); err != nil {
			t.Fatalf("create payment failed: %v", err)
		}
	}
	affected, err := repo.ExpirePendingByOrder(order.ID, time.Now())
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if affected != 2 {
		t.Fatalf("affected want 2 got %d", affected)
	}
	latest, err := repo.GetLatestByOrder(order.ID)
	if err != nil || latest == nil {
		t.Fatalf("latest payment missing: %v", err)
	}
	if latest.Status != constants.PaymentStatusExpired {
		t.Fatalf("latest status want expired got %s", latest.Status)
	}
}
