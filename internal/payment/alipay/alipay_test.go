package alipay

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	cfg, err := ParseConfig(map[string]interface{}{
		"partner":    "2088000000000000",
		"key":        "alipay-md5-key",
		"notify_url": "https://shop.example.com/api/payments/callback/alipay",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	gateway, err := New(cfg)
	if err != nil {
		t.Fatalf("new gateway failed: %v", err)
	}
	return gateway
}

func signedCallback(gateway *Gateway, status string) map[string]string {
	params := map[string]string{
		"out_trade_no": "DJK1",
		"trade_no":     "2024010122001400000000000001",
		"total_amount": "100.00",
		"trade_status": status,
		"notify_id":    "n-1",
	}
	params["sign"] = gateway.scheme.Sign(params)
	params["sign_type"] = "MD5"
	return params
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{"partner": "p", "key": "k"})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.GatewayURL != defaultGatewayURL || cfg.Service != defaultService || cfg.SellerID != "p" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if _, err := ParseConfig(nil); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("nil config want ErrConfigInvalid got %v", err)
	}
}

func TestCreateSession(t *testing.T) {
	gateway := newTestGateway(t)
	session, err := gateway.CreateSession(context.Background(), payment.SessionInput{
		OrderNo:   "DJK1",
		Subject:   "测试商品",
		Amount:    decimal.RequireFromString("100"),
		ExpiresAt: time.Now().Add(31 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if !strings.HasPrefix(session.PayURL, defaultGatewayURL+"?") {
		t.Fatalf("unexpected pay url %s", session.PayURL)
	}
	parsed, _ := url.Parse(session.PayURL)
	query := payment.FormToParams(parsed.Query())
	if query["total_fee"] != "100.00" || query["sign_type"] != "MD5" {
		t.Fatalf("unexpected query %+v", query)
	}
	if query["it_b_pay"] != "30m" {
		t.Fatalf("it_b_pay want 30m got %s", query["it_b_pay"])
	}
	if !gateway.scheme.Verify(query) {
		t.Fatalf("session url signature should verify")
	}
}

func TestCreateSessionRejectsZeroAmount(t *testing.T) {
	gateway := newTestGateway(t)
	_, err := gateway.CreateSession(context.Background(), payment.SessionInput{OrderNo: "DJK1", Amount: decimal.Zero})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid got %v", err)
	}
}

func TestVerifyCallback(t *testing.T) {
	gateway := newTestGateway(t)
	event, err := gateway.VerifyCallback(payment.ParamsToForm(signedCallback(gateway, constants.AlipayTradeStatusSuccess)))
	if err != nil {
		t.Fatalf("verify callback failed: %v", err)
	}
	if event.OrderNo != "DJK1" || !event.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := gateway.VerifyCallback(payment.ParamsToForm(signedCallback(gateway, "WAIT_BUYER_PAY"))); !errors.Is(err, ErrTradeNotSuccess) {
		t.Fatalf("pending trade want ErrTradeNotSuccess got %v", err)
	}

	tampered := signedCallback(gateway, constants.AlipayTradeStatusFinished)
	tampered["total_amount"] = "0.01"
	if _, err := gateway.VerifyCallback(payment.ParamsToForm(tampered)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered callback want ErrSignatureInvalid got %v", err)
	}
}
