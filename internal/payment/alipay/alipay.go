// Package alipay 支付宝即时到账（MD5 签名，密钥直接追加，小写摘要）
package alipay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("alipay config invalid")
	ErrSignatureInvalid = errors.New("alipay signature invalid")
	ErrPayloadInvalid   = errors.New("alipay callback payload invalid")
	ErrTradeNotSuccess  = errors.New("alipay trade not success")
)

const (
	defaultGatewayURL = "https://mapi.alipay.com/gateway.do"
	defaultService    = "create_direct_pay_by_user"
	defaultCharset    = "utf-8"
	signTypeMD5       = "MD5"
)

// Config 支付宝配置
type Config struct {
	Partner    string `json:"partner"`     // 合作者身份 ID
	Key        string `json:"key"`         // MD5 密钥
	SellerID   string `json:"seller_id"`   // 收款账号，默认与 partner 一致
	GatewayURL string `json:"gateway_url"` // 网关地址
	Service    string `json:"service"`     // 接口名称
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
	if cfg.Partner == "" {
		return fmt.Errorf("%w: partner is required", ErrConfigInvalid)
	}
	if cfg.Key == "" {
		return fmt.Errorf("%w: key is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.GatewayURL); err != nil {
		return fmt.Errorf("%w: gateway_url is invalid", ErrConfigInvalid)
	}
	if cfg.NotifyURL != "" {
		if _, err := url.ParseRequestURI(cfg.NotifyURL); err != nil {
			return fmt.Errorf("%w: notify_url is invalid", ErrConfigInvalid)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Partner = strings.TrimSpace(c.Partner)
	c.Key = strings.TrimSpace(c.Key)
	c.SellerID = strings.TrimSpace(c.SellerID)
	if c.SellerID == "" {
		c.SellerID = c.Partner
	}
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
	c.Service = strings.TrimSpace(c.Service)
	if c.Service == "" {
		c.Service = defaultService
	}
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
}

// Gateway 支付宝适配器
type Gateway struct {
	cfg    *Config
	scheme payment.SignatureScheme
}

// New 创建支付宝适配器
func New(cfg *Config) (*Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Gateway{
		cfg: cfg,
		scheme: payment.SignatureScheme{
			Key:       cfg.Key,
			Placement: payment.KeySuffix,
			Exclude:   []string{"sign_type"},
		},
	}, nil
}

// Method 支付方式标识
func (g *Gateway) Method() string {
	return constants.PaymentMethodAlipay
}

// CreateSession 生成带签名的网关跳转地址
func (g *Gateway) CreateSession(_ context.Context, input payment.SessionInput) (*payment.Session, error) {
	if input.OrderNo == "" || !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: order_no/amount is required", ErrConfigInvalid)
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = input.OrderNo
	}
	params := map[string]string{
		"service":        g.cfg.Service,
		"partner":        g.cfg.Partner,
		"seller_id":      g.cfg.SellerID,
		"_input_charset": defaultCharset,
		"payment_type":   "1",
		"out_trade_no":   input.OrderNo,
		"subject":        subject,
		"total_fee":      input.Amount.StringFixed(2),
		"notify_url":     payment.FirstNonEmpty(input.NotifyURL, g.cfg.NotifyURL),
		"return_url":     payment.FirstNonEmpty(input.ReturnURL, g.cfg.ReturnURL),
	}
	if !input.ExpiresAt.IsZero() {
		minutes := int(time.Until(input.ExpiresAt).Minutes())
		if minutes > 0 {
			params["it_b_pay"] = fmt.Sprintf("%dm", minutes)
		}
	}
	params["sign"] = g.scheme.Sign(params)
	params["sign_type"] = signTypeMD5

	payURL := g.cfg.GatewayURL + "?" + payment.EncodeParams(params)
	return &payment.Session{
		PayURL:    payURL,
		QRCode:    payURL,
		ExpiresAt: input.ExpiresAt,
		Raw:       payment.ParamsToRaw(params),
	}, nil
}

// VerifyCallback 校验支付宝异步通知
func (g *Gateway) VerifyCallback(form map[string][]string) (*payment.SettlementEvent, error) {
	params := payment.FormToParams(form)
	if signType := params["sign_type"]; signType != "" && !strings.EqualFold(signType, signTypeMD5) {
		return nil, fmt.Errorf("%w: sign_type %s", ErrSignatureInvalid, signType)
	}
	if !g.scheme.Verify(params) {
		return nil, ErrSignatureInvalid
	}
	switch params["trade_status"] {
	case constants.AlipayTradeStatusSuccess, constants.AlipayTradeStatusFinished:
	default:
		return nil, fmt.Errorf("%w: %s", ErrTradeNotSuccess, params["trade_status"])
	}
	orderNo := strings.TrimSpace(params["out_trade_no"])
	tradeNo := strings.TrimSpace(params["trade_no"])
	if orderNo == "" || tradeNo == "" {
		return nil, fmt.Errorf("%w: out_trade_no/trade_no is required", ErrPayloadInvalid)
	}
	amount, err := decimal.NewFromString(payment.FirstNonEmpty(params["total_amount"], params["total_fee"]))
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount is invalid", ErrPayloadInvalid)
	}
	return &payment.SettlementEvent{
		Method:  constants.PaymentMethodAlipay,
		OrderNo: orderNo,
		TradeNo: tradeNo,
		Amount:  amount,
		Raw:     payment.ParamsToRaw(params),
	}, nil
}
