// Package payment 定义支付适配器的公共契约与签名算法。
// 具体支付方式位于子包中，由 service 层以封闭的 switch 选择。
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Adapter 支付方式适配器
type Adapter interface {
	// Method 支付方式标识（alipay/wechat/payjs/codepay）
	Method() string
	// CreateSession 创建支付会话，可能发起网关请求
	CreateSession(ctx context.Context, input SessionInput) (*Session, error)
	// VerifyCallback 校验异步回调签名并解析为结算事件
	VerifyCallback(form map[string][]string) (*SettlementEvent, error)
}

// SessionInput 创建支付会话的输入
type SessionInput struct {
	OrderID   uint
	OrderNo   string
	Subject   string
	Amount    decimal.Decimal
	ClientIP  string
	ReturnURL string
	NotifyURL string
	ExpiresAt time.Time
}

// Session 支付会话
type Session struct {
	SessionID string                 // 网关侧会话/订单标识
	PayURL    string                 // 跳转链接
	QRCode    string                 // 二维码内容
	TradeNo   string                 // 网关交易号（部分网关在下单时即返回）
	ExpiresAt time.Time              // 会话过期时间
	Raw       map[string]interface{} // 网关原始返回
}

// SettlementEvent 回调解析后的结算事件
type SettlementEvent struct {
	Method  string
	OrderNo string // 商户订单号
	TradeNo string // 网关交易号
	Amount  decimal.Decimal
	Raw     map[string]interface{}
}
