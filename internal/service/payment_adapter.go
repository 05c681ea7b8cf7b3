package service

import (
	"fmt"
	"net/http"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/payment"
	"github.com/dujiao-next/settlement/internal/payment/alipay"
	"github.com/dujiao-next/settlement/internal/payment/codepay"
	"github.com/dujiao-next/settlement/internal/payment/payjs"
	"github.com/dujiao-next/settlement/internal/payment/wechat"
)

// SelectPaymentAdapter 按支付方式选择适配器
// 支付方式是封闭集合，新增网关需要在这里加分支。
func SelectPaymentAdapter(method string, cfg config.PaymentConfig, client *http.Client) (payment.Adapter, error) {
	method = normalizePaymentMethod(method)
	raw := cfg.ProviderConfig(method)
	switch method {
	case constants.PaymentMethodAlipay:
		parsed, err := alipay.ParseConfig(raw)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		gateway, err := alipay.New(parsed)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		return gateway, nil
	case constants.PaymentMethodWechat:
		parsed, err := wechat.ParseConfig(raw)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		gateway, err := wechat.New(parsed, client)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		return gateway, nil
	case constants.PaymentMethodPayJS:
		parsed, err := payjs.ParseConfig(raw)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		gateway, err := payjs.New(parsed, client)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		return gateway, nil
	case constants.PaymentMethodCodePay:
		parsed, err := codepay.ParseConfig(raw)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		gateway, err := codepay.New(parsed)
		if err != nil {
			return nil, providerConfigError(method, err)
		}
		return gateway, nil
	default:
		return nil, ErrUnsupportedPaymentMethod
	}
}

func providerConfigError(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPaymentProviderNotConfigured, method, err)
}
