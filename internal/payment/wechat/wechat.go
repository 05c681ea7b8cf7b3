// Package wechat 微信支付 V2 扫码下单（XML 报文，MD5 签名以 &key= 追加，大写摘要）
package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("wechat config invalid")
	ErrRequestFailed    = errors.New("wechat request failed")
	ErrResponseInvalid  = errors.New("wechat response invalid")
	ErrSignatureInvalid = errors.New("wechat signature invalid")
	ErrPayloadInvalid   = errors.New("wechat callback payload invalid")
)

const (
	defaultGatewayURL = "https://api.mch.weixin.qq.com"
	defaultAPIPath    = "/pay/unifiedorder"
	defaultTradeType  = "NATIVE"
	defaultClientIP   = "127.0.0.1"
	timeExpireLayout  = "20060102150405"
	codeSuccess       = "SUCCESS"
)

// Config 微信支付配置
type Config struct {
	AppID      string `json:"appid"`       // 公众号/应用 ID
	MchID      string `json:"mch_id"`      // 商户号
	Key        string `json:"key"`         // API 密钥
	GatewayURL string `json:"gateway_url"` // 网关地址
	APIPath    string `json:"api_path"`    // 统一下单路径
	TradeType  string `json:"trade_type"`  // 交易类型
	NotifyURL  string `json:"notify_url"`  // 异步通知地址
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
	if cfg.AppID == "" {
		return fmt.Errorf("%w: appid is required", ErrConfigInvalid)
	}
	if cfg.MchID == "" {
		return fmt.Errorf("%w: mch_id is required", ErrConfigInvalid)
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
	c.AppID = strings.TrimSpace(c.AppID)
	c.MchID = strings.TrimSpace(c.MchID)
	c.Key = strings.TrimSpace(c.Key)
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
	c.APIPath = strings.TrimSpace(c.APIPath)
	if c.APIPath == "" {
		c.APIPath = defaultAPIPath
	}
	c.TradeType = strings.ToUpper(strings.TrimSpace(c.TradeType))
	if c.TradeType == "" {
		c.TradeType = defaultTradeType
	}
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
}

// Gateway 微信支付适配器
type Gateway struct {
	cfg    *Config
	client *http.Client
	scheme payment.SignatureScheme
}

// New 创建微信支付适配器
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
	return constants.PaymentMethodWechat
}

// CreateSession 调用统一下单接口获取 code_url
func (g *Gateway) CreateSession(ctx context.Context, input payment.SessionInput) (*payment.Session, error) {
	if input.OrderNo == "" || !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: order_no/amount is required", ErrConfigInvalid)
	}
	notifyURL := payment.FirstNonEmpty(input.NotifyURL, g.cfg.NotifyURL)
	if notifyURL == "" {
		return nil, fmt.Errorf("%w: notify_url is required", ErrConfigInvalid)
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = input.OrderNo
	}
	params := map[string]string{
		"appid":            g.cfg.AppID,
		"mch_id":           g.cfg.MchID,
		"nonce_str":        strings.ReplaceAll(uuid.NewString(), "-", ""),
		"body":             subject,
		"out_trade_no":     input.OrderNo,
		"total_fee":        strconv.FormatInt(input.Amount.Shift(2).Round(0).IntPart(), 10),
		"spbill_create_ip": payment.FirstNonEmpty(input.ClientIP, defaultClientIP),
		"notify_url":       notifyURL,
		"trade_type":       g.cfg.TradeType,
		"product_id":       strconv.FormatUint(uint64(input.OrderID), 10),
	}
	if !input.ExpiresAt.IsZero() {
		params["time_expire"] = input.ExpiresAt.In(chinaZone()).Format(timeExpireLayout)
	}
	params["sign"] = g.scheme.Sign(params)

	respParams, err := g.postXML(ctx, payment.JoinURL(g.cfg.GatewayURL, g.cfg.APIPath), params)
	if err != nil {
		return nil, err
	}
	if respParams["return_code"] != codeSuccess {
		return nil, fmt.Errorf("%w: %s", ErrResponseInvalid, respParams["return_msg"])
	}
	if !g.scheme.Verify(respParams) {
		return nil, fmt.Errorf("%w: response signature mismatch", ErrResponseInvalid)
	}
	if respParams["result_code"] != codeSuccess {
		return nil, fmt.Errorf("%w: %s %s", ErrResponseInvalid, respParams["err_code"], respParams["err_code_des"])
	}
	codeURL := respParams["code_url"]
	if codeURL == "" {
		return nil, fmt.Errorf("%w: code_url is empty", ErrResponseInvalid)
	}
	return &payment.Session{
		SessionID: respParams["prepay_id"],
		PayURL:    codeURL,
		QRCode:    codeURL,
		ExpiresAt: input.ExpiresAt,
		Raw:       payment.ParamsToRaw(respParams),
	}, nil
}

// VerifyCallback 校验微信支付结果通知（XML 报文需先转为表单结构）
func (g *Gateway) VerifyCallback(form map[string][]string) (*payment.SettlementEvent, error) {
	params := payment.FormToParams(form)
	if !g.scheme.Verify(params) {
		return nil, ErrSignatureInvalid
	}
	if params["return_code"] != codeSuccess || params["result_code"] != constants.WechatResultSuccess {
		return nil, fmt.Errorf("%w: return_code=%s result_code=%s", ErrPayloadInvalid, params["return_code"], params["result_code"])
	}
	orderNo := strings.TrimSpace(params["out_trade_no"])
	tradeNo := strings.TrimSpace(params["transaction_id"])
	if orderNo == "" || tradeNo == "" {
		return nil, fmt.Errorf("%w: out_trade_no/transaction_id is required", ErrPayloadInvalid)
	}
	cents, err := strconv.ParseInt(strings.TrimSpace(params["total_fee"]), 10, 64)
	if err != nil || cents <= 0 {
		return nil, fmt.Errorf("%w: total_fee is invalid", ErrPayloadInvalid)
	}
	return &payment.SettlementEvent{
		Method:  constants.PaymentMethodWechat,
		OrderNo: orderNo,
		TradeNo: tradeNo,
		Amount:  decimal.NewFromInt(cents).Shift(-2),
		Raw:     payment.ParamsToRaw(params),
	}, nil
}

// CallbackReply 微信要求以 XML 应答通知
func (g *Gateway) CallbackReply(ok bool) (string, string) {
	reply := map[string]string{"return_code": codeSuccess, "return_msg": "OK"}
	if !ok {
		reply = map[string]string{"return_code": "FAIL", "return_msg": "FAIL"}
	}
	return "application/xml; charset=utf-8", string(payment.EncodeXML(reply))
}

func (g *Gateway) postXML(ctx context.Context, endpoint string, params map[string]string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payment.EncodeXML(params)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	respParams, err := payment.DecodeXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return respParams, nil
}

func chinaZone() *time.Location {
	if loc, err := time.LoadLocation("Asia/Shanghai"); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*3600)
}
