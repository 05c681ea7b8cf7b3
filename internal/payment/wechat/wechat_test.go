package wechat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

func newTestGateway(t *testing.T, gatewayURL string) *Gateway {
	t.Helper()
	cfg, err := ParseConfig(map[string]interface{}{
		"appid":       "wx0000000000000000",
		"mch_id":      "1900000109",
		"key":         "192006250b4c09247ec02edce69f6a2d",
		"gateway_url": gatewayURL,
		"notify_url":  "https://shop.example.com/api/payments/callback/wechat",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	gateway, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new gateway failed: %v", err)
	}
	return gateway
}

func TestCreateSessionUnifiedOrder(t *testing.T) {
	var gateway *Gateway
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		params, err := payment.DecodeXML(body)
		if err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		received = params
		resp := map[string]string{
			"return_code": "SUCCESS",
			"result_code": "SUCCESS",
			"appid":       params["appid"],
			"mch_id":      params["mch_id"],
			"nonce_str":   "5K8264ILTKCH16CQ2502SI8ZNMTM67VS",
			"prepay_id":   "wx201410272009395522657a690389285100",
			"trade_type":  "NATIVE",
			"code_url":    "weixin://wxpay/bizpayurl?pr=abc",
		}
		resp["sign"] = gateway.scheme.Sign(resp)
		_, _ = w.Write(payment.EncodeXML(resp))
	}))
	defer server.Close()

	gateway = newTestGateway(t, server.URL)
	session, err := gateway.CreateSession(context.Background(), payment.SessionInput{
		OrderID:   7,
		OrderNo:   "DJK1",
		Subject:   "测试商品",
		Amount:    decimal.RequireFromString("12.34"),
		ClientIP:  "10.0.0.1",
		ExpiresAt: time.Now().Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if received["total_fee"] != "1234" || received["spbill_create_ip"] != "10.0.0.1" {
		t.Fatalf("unexpected request %+v", received)
	}
	if !gateway.scheme.Verify(received) {
		t.Fatalf("request signature should verify")
	}
	if received["sign"] != strings.ToUpper(received["sign"]) {
		t.Fatalf("wechat sign must be uppercase")
	}
	if session.PayURL != "weixin://wxpay/bizpayurl?pr=abc" || session.SessionID == "" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestCreateSessionRejectsUnsignedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payment.EncodeXML(map[string]string{
			"return_code": "SUCCESS",
			"result_code": "SUCCESS",
			"code_url":    "weixin://forged",
			"sign":        "FORGED",
		}))
	}))
	defer server.Close()

	gateway := newTestGateway(t, server.URL)
	_, err := gateway.CreateSession(context.Background(), payment.SessionInput{OrderNo: "DJK1", Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("want ErrResponseInvalid got %v", err)
	}
}

func TestVerifyCallback(t *testing.T) {
	gateway := newTestGateway(t, defaultGatewayURL)
	params := map[string]string{
		"return_code":    "SUCCESS",
		"result_code":    "SUCCESS",
		"out_trade_no":   "DJK1",
		"transaction_id": "4200000000000000001",
		"total_fee":      "10000",
		"nonce_str":      "abc",
	}
	params["sign"] = gateway.scheme.Sign(params)

	event, err := gateway.VerifyCallback(payment.ParamsToForm(params))
	if err != nil {
		t.Fatalf("verify callback failed: %v", err)
	}
	if !event.Amount.Equal(decimal.NewFromInt(100)) || event.TradeNo != "4200000000000000001" {
		t.Fatalf("unexpected event %+v", event)
	}

	params["out_trade_no"] = "DJK2"
	if _, err := gateway.VerifyCallback(payment.ParamsToForm(params)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered callback want ErrSignatureInvalid got %v", err)
	}
}

func TestCallbackReply(t *testing.T) {
	gateway := newTestGateway(t, defaultGatewayURL)
	contentType, body := gateway.CallbackReply(true)
	if !strings.Contains(contentType, "xml") || !strings.Contains(body, "SUCCESS") {
		t.Fatalf("unexpected success reply %s %s", contentType, body)
	}
	_, body = gateway.CallbackReply(false)
	if !strings.Contains(body, "FAIL") {
		t.Fatalf("unexpected fail reply %s", body)
	}
}
