// Package payjs PayJS 扫码支付（MD5 签名，密钥以 &key= 追加，大写摘要）
package payjs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("payjs config invalid")
	ErrRequestFailed    = errors.New("payjs request failed")
	ErrResponseInvalid  = errors.New("payjs response invalid")
	ErrSignatureInvalid = errors.New("payjs signature invalid")
	ErrPayloadInvalid   = errors.New("payjs callback payload invalid")
)

const (
	defaultGatewayURL = "https://payjs.cn"
	defaultAPIPath    = "/api/native"
)

// Config PayJS 配置
type Config struct {
	MerchantID string `json:"mchid"`       // 商户号
	Key        string `json:"key"`         // 通信密钥
	GatewayURL string `json:"gateway_url"` // 网关地址
	APIPath    string `json:"api_path"`    // 下单接口路径
	NotifyURL  string `json:"notify_url"`  // 异步通知地址
	ReturnURL  string `json:"return_url"`  // 同步跳转地址
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.MerchantID == "" {
		return fmt.Errorf("%w: mchid is required", ErrConfigInvalid)
	}
	if cfg.Key == "" {
		return fmt.Errorf("%w: key is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.GatewayURL); err != nil {
		return fmt.Errorf("%w: gateway_url is invalid", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.MerchantID = strings.TrimSpace(c.MerchantID)
	c.Key = strings.TrimSpace(c.Key)
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
	c.APIPath = strings.TrimSpace(c.APIPath)
	if c.APIPath == "" {
		c.APIPath = defaultAPIPath
	}
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
}

// Gateway PayJS 适配器
type Gateway struct {
	cfg    *Config
	client *http.Client
	scheme payment.SignatureScheme
}

// New 创建 PayJS 适配器
func New(cfg *Config, client *http.Client) (*Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{
		cfg:    cfg,
		client: client,
		scheme: payment.SignatureScheme{Key: cfg.Key, Placement: payment.KeyParam, Upper: true},
	}, nil
}

// Method 支付方式标识
func (g *Gateway) Method() string {
	return constants.PaymentMethodPayJS
}

// CreateSession 调用 PayJS 扫码下单接口
func (g *Gateway) CreateSession(ctx context.Context, input payment.SessionInput) (*payment.Session, error) {
	if input.OrderNo == "" || !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: order_no/amount is required", ErrConfigInvalid)
	}
	params := map[string]string{
		"mchid":        g.cfg.MerchantID,
		"total_fee":    strconv.FormatInt(toCents(input.Amount), 10),
		"out_trade_no": input.OrderNo,
		"body":         input.Subject,
		"notify_url":   payment.FirstNonEmpty(input.NotifyURL, g.cfg.NotifyURL),
		"return_url":   payment.FirstNonEmpty(input.ReturnURL, g.cfg.ReturnURL),
	}
	params["sign"] = g.scheme.Sign(params)

	body, err := payment.PostForm(ctx, g.client, payment.JoinURL(g.cfg.GatewayURL, g.cfg.APIPath), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	raw, err := decodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if code := stringField(raw, "return_code"); code != "1" {
		return nil, fmt.Errorf("%w: %s", ErrResponseInvalid, stringField(raw, "return_msg"))
	}
	orderID := stringField(raw, "payjs_order_id")
	codeURL := stringField(raw, "code_url")
	qrCode := stringField(raw, "qrcode")
	if orderID == "" || (codeURL == "" && qrCode == "") {
		return nil, fmt.Errorf("%w: missing payjs_order_id or code_url", ErrResponseInvalid)
	}
	return &payment.Session{
		SessionID: orderID,
		PayURL:    codeURL,
		QRCode:    qrCode,
		TradeNo:   orderID,
		ExpiresAt: input.ExpiresAt,
		Raw:       raw,
	}, nil
}

// VerifyCallback 校验 PayJS 异步通知
func (g *Gateway) VerifyCallback(form map[string][]string) (*payment.SettlementEvent, error) {
	params := payment.FormToParams(form)
	if !g.scheme.Verify(params) {
		return nil, ErrSignatureInvalid
	}
	if code := params["return_code"]; code != "" && code != "1" {
		return nil, fmt.Errorf("%w: return_code=%s", ErrPayloadInvalid, code)
	}
	orderNo := strings.TrimSpace(params["out_trade_no"])
	tradeNo := strings.TrimSpace(params["payjs_order_id"])
	if orderNo == "" || tradeNo == "" {
		return nil, fmt.Errorf("%w: out_trade_no/payjs_order_id is required", ErrPayloadInvalid)
	}
	cents, err := strconv.ParseInt(strings.TrimSpace(params["total_fee"]), 10, 64)
	if err != nil || cents <= 0 {
		return nil, fmt.Errorf("%w: total_fee is invalid", ErrPayloadInvalid)
	}
	return &payment.SettlementEvent{
		Method:  constants.PaymentMethodPayJS,
		OrderNo: orderNo,
		TradeNo: tradeNo,
		Amount:  decimal.NewFromInt(cents).Shift(-2),
		Raw:     payment.ParamsToRaw(params),
	}, nil
}

// decodeResponse 解析下单应答，数字保留原文
func decodeResponse(body []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty response")
	}
	return raw, nil
}

func stringField(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
