package public

import "github.com/dujiao-next/settlement/internal/provider"

// Handler 公开接口处理器：下单、支付、回调、订单查询
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
