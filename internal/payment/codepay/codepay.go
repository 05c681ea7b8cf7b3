// Package codepay 码支付（MD5 签名，密钥直接追加在待签名串末尾，小写摘要）
package codepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("codepay config invalid")
	ErrSignatureInvalid = errors.New("codepay signature invalid")
	ErrPayloadInvalid   = errors.New("codepay callback payload invalid")
)

const (
	defaultCreatePath = "/creat_order/"
	defaultPayType    = "1" // 1 支付宝 / 2 QQ / 3 微信
)

// Config 码支付配置
type Config struct {
	ID        string `json:"id"`         // 码支付 ID
	Key       string `json:"key"`        // 通信密钥
	APIURL    string `json:"api_url"`    // 网关地址
	PayType   string `json:"type"`       // 付款方式
	NotifyURL string `json:"notify_url"` // 异步通知地址
	ReturnURL string `json:"return_url"` // 同步跳转地址
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
	if cfg.ID == "" {
		return fmt.Errorf("%w: id is required", ErrConfigInvalid)
	}
	if cfg.Key == "" {
		return fmt.Errorf("%w: key is required", ErrConfigInvalid)
	}
	if cfg.APIURL == "" {
		return fmt.Errorf("%w: api_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.APIURL); err != nil {
		return fmt.Errorf("%w: api_url is invalid", ErrConfigInvalid)
	}
	switch cfg.PayType {
	case "1", "2", "3":
	default:
		return fmt.Errorf("%w: type %s is not supported", ErrConfigInvalid, cfg.PayType)
	}
	return nil
}

func (c *Config) normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Key = strings.TrimSpace(c.Key)
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.PayType = strings.TrimSpace(c.PayType)
	if c.PayType == "" {
		c.PayType = defaultPayType
	}
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
}

// Gateway 码支付适配器
type Gateway struct {
	cfg    *Config
	scheme payment.SignatureScheme
}

// New 创建码支付适配器
func New(cfg *Config) (*Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:    cfg,
		scheme: payment.SignatureScheme{Key: cfg.Key, Placement: payment.KeySuffix},
	}, nil
}

// Method 支付方式标识
func (g *Gateway) Method() string {
	return constants.PaymentMethodCodePay
}

// CreateSession 生成码支付收银台地址（下单由浏览器跳转完成，不发起网关请求）
func (g *Gateway) CreateSession(_ context.Context, input payment.SessionInput) (*payment.Session, error) {
	if input.OrderNo == "" || !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: order_no/amount is required", ErrConfigInvalid)
	}
	params := map[string]string{
		"id":         g.cfg.ID,
		"pay_id":     input.OrderNo,
		"type":       g.cfg.PayType,
		"price":      input.Amount.StringFixed(2),
		"param":      strconv.FormatUint(uint64(input.OrderID), 10),
		"notify_url": payment.FirstNonEmpty(input.NotifyURL, g.cfg.NotifyURL),
		"return_url": payment.FirstNonEmpty(input.ReturnURL, g.cfg.ReturnURL),
	}
	params["sign"] = g.scheme.Sign(params)
	payURL := payment.JoinURL(g.cfg.APIURL, defaultCreatePath) + "?" + payment.EncodeParams(params)
	return &payment.Session{
		PayURL:    payURL,
		QRCode:    payURL,
		ExpiresAt: input.ExpiresAt,
		Raw:       payment.ParamsToRaw(params),
	}, nil
}

// VerifyCallback 校验码支付异步通知
func (g *Gateway) VerifyCallback(form map[string][]string) (*payment.SettlementEvent, error) {
	params := payment.FormToParams(form)
	if !g.scheme.Verify(params) {
		return nil, ErrSignatureInvalid
	}
	orderNo := strings.TrimSpace(params["pay_id"])
	tradeNo := payment.FirstNonEmpty(params["trade_no"], params["pay_no"])
	if orderNo == "" || tradeNo == "" {
		return nil, fmt.Errorf("%w: pay_id/trade_no is required", ErrPayloadInvalid)
	}
	amount, err := decimal.NewFromString(payment.FirstNonEmpty(params["price"], params["money"]))
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: price is invalid", ErrPayloadInvalid)
	}
	return &payment.SettlementEvent{
		Method:  constants.PaymentMethodCodePay,
		OrderNo: orderNo,
		TradeNo: tradeNo,
		Amount:  amount,
		Raw:     payment.ParamsToRaw(params),
	}, nil
}
