package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/http/response"
	"github.com/dujiao-next/settlement/internal/models"
	"github.com/dujiao-next/settlement/internal/payment"
	"github.com/dujiao-next/settlement/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

type handlerEnv struct {
	db     *gorm.DB
	engine *gin.Engine
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := &config.Config{
		Order: config.OrderConfig{PaymentExpireMinutes: 15, OrderNoPrefix: "H"},
		Payment: config.PaymentConfig{
			PublicBaseURL: "https://shop.example.com",
			Providers: map[string]map[string]interface{}{
				"payjs": {"mchid": "M1001", "key": "payjs-secret"},
			},
		},
	}
	h := New(provider.NewContainer(cfg, db))

	engine := gin.New()
	engine.GET("/health", h.Health)
	api := engine.Group("/api")
	api.POST("/orders", h.CreateOrder)
	api.GET("/orders/by-number/:orderNo", h.GetOrderByNo)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/orders/:id/status", h.GetOrderStatus)
	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.POST("/payments/:orderId/create", h.CreatePayment)
	api.GET("/payments/:orderId/status", h.GetPaymentStatus)
	api.POST("/payments/callback/:method", h.PaymentCallback)
	return &handlerEnv{db: db, engine: engine}
}

func (e *handlerEnv) seedProduct(t *testing.T, price string, cards int) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:     "季卡",
		Price:    models.NewMoneyFromDecimal(decimal.RequireFromString(price)),
		IsActive: true,
	}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	for i := 0; i < cards; i++ {
		card := &models.Card{ProductID: product.ID, Secret: fmt.Sprintf("SECRET-%d", i), Status: constants.CardStatusAvailable}
		if err := e.db.Create(card).Error; err != nil {
			t.Fatalf("create card failed: %v", err)
		}
	}
	return product
}

func (e *handlerEnv) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope failed: %v body=%s", err, w.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data failed: %v", err)
		}
	}
	return env
}

type createOrderData struct {
	Order struct {
		ID          uint   `json:"id"`
		OrderNumber string `json:"order_number"`
		Status      string `json:"status"`
		TotalAmount string `json:"total_amount"`
		Total       int64  `json:"total"`
	} `json:"order"`
	PaymentURL string `json:"payment_url"`
}

func (e *handlerEnv) createOrder(t *testing.T, productID uint, quantity int) createOrderData {
	t.Helper()
	body := fmt.Sprintf(`{"product_id":%d,"quantity":%d,"customer_email":"Buyer@Example.com","payment_method":"payjs"}`, productID, quantity)
	w := e.do(t, http.MethodPost, "/api/orders", "application/json", body)
	var data createOrderData
	env := decodeEnvelope(t, w, &data)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("create order failed: %+v", env)
	}
	return data
}

func signedCallbackForm(orderNo, tradeNo, totalFee string) url.Values {
	params := map[string]string{
		"return_code":    "1",
		"total_fee":      totalFee,
		"out_trade_no":   orderNo,
		"payjs_order_id": tradeNo,
		"mchid":          "M1001",
	}
	scheme := payment.SignatureScheme{Key: "payjs-secret", Placement: payment.KeyParam, Upper: true}
	params["sign"] = scheme.Sign(params)
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return form
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "50.00", 2)

	data := env.createOrder(t, product.ID, 2)
	if data.Order.Status != "pending" || data.Order.TotalAmount != "100.00" || data.Order.Total != 10000 {
		t.Fatalf("unexpected order: %+v", data.Order)
	}
	want := fmt.Sprintf("https://shop.example.com/api/payments/%d/create?method=payjs", data.Order.ID)
	if data.PaymentURL != want {
		t.Fatalf("payment url want %s got %s", want, data.PaymentURL)
	}
	if !strings.HasPrefix(data.Order.OrderNumber, "H") {
		t.Fatalf("order number should use configured prefix: %s", data.Order.OrderNumber)
	}
}

func TestCreateOrderEndpointErrors(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "10.00", 1)

	cases := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed", body: `{"product_id":`, code: response.CodeBadRequest},
		{name: "bad email", body: fmt.Sprintf(`{"product_id":%d,"customer_email":"nope","payment_method":"payjs"}`, product.ID), code: response.CodeBadRequest},
		{name: "unknown method", body: fmt.Sprintf(`{"product_id":%d,"customer_email":"a@b.com","payment_method":"stripe"}`, product.ID), code: response.CodeBadRequest},
		{name: "missing product", body: `{"product_id":999,"customer_email":"a@b.com","payment_method":"payjs"}`, code: response.CodeBadRequest},
		{name: "explicit zero quantity", body: fmt.Sprintf(`{"product_id":%d,"quantity":0,"customer_email":"a@b.com","payment_method":"payjs"}`, product.ID), code: response.CodeBadRequest},
		{name: "negative quantity", body: fmt.Sprintf(`{"product_id":%d,"quantity":-1,"customer_email":"a@b.com","payment_method":"payjs"}`, product.ID), code: response.CodeBadRequest},
		{name: "insufficient stock", body: fmt.Sprintf(`{"product_id":%d,"quantity":5,"customer_email":"a@b.com","payment_method":"payjs"}`, product.ID), code: response.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/orders", "application/json", tc.body)
			got := decodeEnvelope(t, w, nil)
			if got.StatusCode != tc.code {
				t.Fatalf("status_code want %d got %d (%s)", tc.code, got.StatusCode, got.Msg)
			}
		})
	}
}

func TestCallbackSettlesAndRevealsCards(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "50.00", 2)
	created := env.createOrder(t, product.ID, 2)

	form := signedCallbackForm(created.Order.OrderNumber, "PJ-H1", "10000")
	w := env.do(t, http.MethodPost, "/api/payments/callback/payjs", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusOK || w.Body.String() != constants.CallbackReplySuccess {
		t.Fatalf("callback want 200 success, got %d %q", w.Code, w.Body.String())
	}

	// 重复通知同样返回 success
	w = env.do(t, http.MethodPost, "/api/payments/callback/payjs", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusOK || w.Body.String() != constants.CallbackReplySuccess {
		t.Fatalf("duplicate callback want 200 success, got %d %q", w.Code, w.Body.String())
	}

	var view struct {
		Status      string `json:"status"`
		IsPaid      bool   `json:"is_paid"`
		IsFulfilled bool   `json:"is_fulfilled"`
		Cards       []struct {
			Secret string `json:"secret"`
		} `json:"cards"`
	}
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d?email=buyer@example.com", created.Order.ID), "", "")
	decodeEnvelope(t, w, &view)
	if view.Status != "completed" || !view.IsPaid || !view.IsFulfilled || len(view.Cards) != 2 {
		t.Fatalf("unexpected settled view: %+v", view)
	}

	var status struct {
		PaymentStatus string `json:"payment_status"`
		TradeNo       string `json:"trade_no"`
	}
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/payments/%d/status", created.Order.ID), "", "")
	decodeEnvelope(t, w, &status)
	if status.PaymentStatus != "paid" || status.TradeNo != "PJ-H1" {
		t.Fatalf("unexpected payment status: %+v", status)
	}
}

func TestCallbackRejectsTamperedPayload(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "50.00", 1)
	created := env.createOrder(t, product.ID, 1)

	form := signedCallbackForm(created.Order.OrderNumber, "PJ-H2", "5000")
	form.Set("total_fee", "1")
	w := env.do(t, http.MethodPost, "/api/payments/callback/payjs", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusBadRequest || w.Body.String() != constants.CallbackReplyFail {
		t.Fatalf("tampered callback want 400 fail, got %d %q", w.Code, w.Body.String())
	}

	var snapshot struct {
		Status string `json:"status"`
		IsPaid bool   `json:"is_paid"`
	}
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d/status", created.Order.ID), "", "")
	decodeEnvelope(t, w, &snapshot)
	if snapshot.Status != "pending" || snapshot.IsPaid {
		t.Fatalf("order must stay pending: %+v", snapshot)
	}
}

func TestCallbackUnknownMethodFails(t *testing.T) {
	env := newHandlerEnv(t)
	w := env.do(t, http.MethodPost, "/api/payments/callback/stripe", "application/json", `{"id":"evt"}`)
	if w.Code != http.StatusBadRequest || w.Body.String() != constants.CallbackReplyFail {
		t.Fatalf("want 400 fail, got %d %q", w.Code, w.Body.String())
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "8.00", 1)
	created := env.createOrder(t, product.ID, 1)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", created.Order.ID), "application/json", `{"email":"Buyer@Example.com"}`)
	var view struct {
		Status string `json:"status"`
	}
	got := decodeEnvelope(t, w, &view)
	if got.StatusCode != response.CodeOK || view.Status != "cancelled" {
		t.Fatalf("cancel failed: %+v %+v", got, view)
	}

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", created.Order.ID), "application/json", `{"email":"Buyer@Example.com"}`)
	if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeConflict {
		t.Fatalf("second cancel want conflict, got %+v", got)
	}

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/payments/%d/create", created.Order.ID), "", "")
	if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeConflict {
		t.Fatalf("payment on cancelled order want conflict, got %+v", got)
	}

	var status struct {
		PaymentStatus string `json:"payment_status"`
		IsPaid        bool   `json:"is_paid"`
	}
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/payments/%d/status", created.Order.ID), "", "")
	decodeEnvelope(t, w, &status)
	if status.PaymentStatus != "cancelled" || status.IsPaid {
		t.Fatalf("cancelled order payment status: %+v", status)
	}
}

func TestOrderLookupErrors(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodGet, "/api/orders/abc", "", "")
	if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeBadRequest {
		t.Fatalf("invalid id want 400, got %+v", got)
	}
	w = env.do(t, http.MethodGet, "/api/orders/404", "", "")
	if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeNotFound {
		t.Fatalf("missing order want 404, got %+v", got)
	}
	w = env.do(t, http.MethodGet, "/api/orders/by-number/NOPE", "", "")
	if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeNotFound {
		t.Fatalf("missing order number want 404, got %+v", got)
	}
}

func TestHealth(t *testing.T) {
	env := newHandlerEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", "")
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health failed: %v", err)
	}
	if body["status"] != "OK" || body["service"] != serviceName || body["timestamp"] == "" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestParseCallbackFormMergesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodPost, "/cb?out_trade_no=Q&extra=1", strings.NewReader("out_trade_no=F"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Request = req

	form, err := parseCallbackForm(c)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if form["out_trade_no"][0] != "F" || form["extra"][0] != "1" {
		t.Fatalf("unexpected merged form: %+v", form)
	}
}

func TestParseCallbackFormXML(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	body := `<xml><out_trade_no><![CDATA[DJ1]]></out_trade_no><total_fee>100</total_fee></xml>`
	req := httptest.NewRequest(http.MethodPost, "/cb", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml")
	c.Request = req

	form, err := parseCallbackForm(c)
	if err != nil {
		t.Fatalf("parse xml failed: %v", err)
	}
	if form["out_trade_no"][0] != "DJ1" || form["total_fee"][0] != "100" {
		t.Fatalf("unexpected xml form: %+v", form)
	}
}

func TestCreateOrderDefaultsMissingQuantity(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "10.00", 1)

	body := fmt.Sprintf(`{"product_id":%d,"customer_email":"a@b.com","payment_method":"payjs"}`, product.ID)
	w := env.do(t, http.MethodPost, "/api/orders", "application/json", body)
	var data struct {
		Order struct {
			Quantity    int    `json:"quantity"`
			TotalAmount string `json:"total_amount"`
		} `json:"order"`
	}
	if got := decodeEnvelope(t, w, &data); got.StatusCode != response.CodeOK {
		t.Fatalf("create failed: %+v", got)
	}
	if data.Order.Quantity != 1 || data.Order.TotalAmount != "10.00" {
		t.Fatalf("missing quantity should default to 1: %+v", data.Order)
	}
}

func TestOrderAccessRequiresCustomerEmail(t *testing.T) {
	env := newHandlerEnv(t)
	product := env.seedProduct(t, "50.00", 2)
	paid := env.createOrder(t, product.ID, 1)
	form := signedCallbackForm(paid.Order.OrderNumber, "PJ-H9", "5000")
	if w := env.do(t, http.MethodPost, "/api/payments/callback/payjs", "application/x-www-form-urlencoded", form.Encode()); w.Body.String() != constants.CallbackReplySuccess {
		t.Fatalf("settle failed: %q", w.Body.String())
	}

	targets := []string{
		fmt.Sprintf("/api/orders/%d", paid.Order.ID),
		fmt.Sprintf("/api/orders/%d?email=someone@example.com", paid.Order.ID),
		"/api/orders/by-number/" + paid.Order.OrderNumber,
		"/api/orders/by-number/" + paid.Order.OrderNumber + "?email=someone@example.com",
	}
	for _, target := range targets {
		w := env.do(t, http.MethodGet, target, "", "")
		if strings.Contains(w.Body.String(), "SECRET-") {
			t.Fatalf("%s leaked card secrets: %s", target, w.Body.String())
		}
		if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeNotFound {
			t.Fatalf("%s want not found got %+v", target, got)
		}
	}

	w := env.do(t, http.MethodGet, "/api/orders/by-number/"+paid.Order.OrderNumber+"?email=BUYER@example.com", "", "")
	var view struct {
		Cards []struct {
			Secret string `json:"secret"`
		} `json:"cards"`
	}
	if got := decodeEnvelope(t, w, &view); got.StatusCode != response.CodeOK || len(view.Cards) != 1 {
		t.Fatalf("owner should see cards: %+v %+v", got, view)
	}

	// 状态快照不含卡密，保持公开
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d/status", paid.Order.ID), "", "")
	if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeOK {
		t.Fatalf("status snapshot should stay open: %+v", got)
	}

	pending := env.createOrder(t, product.ID, 1)
	for _, body := range []string{"", `{"email":"someone@example.com"}`} {
		w = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", pending.Order.ID), "application/json", body)
		if got := decodeEnvelope(t, w, nil); got.StatusCode != response.CodeNotFound {
			t.Fatalf("cancel with body %q want not found got %+v", body, got)
		}
	}
	var snapshot struct {
		Status string `json:"status"`
	}
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%d/status", pending.Order.ID), "", "")
	decodeEnvelope(t, w, &snapshot)
	if snapshot.Status != "pending" {
		t.Fatalf("foreign cancel must leave order pending, got %s", snapshot.Status)
	}
}
