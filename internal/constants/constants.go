package constants

// 订单状态常量（与旧库 orders.status 取值保持一致）
const (
	OrderStatusPending    = 1
	OrderStatusProcessing = 2 // 预留给外部交付流程，本系统不驱动
	OrderStatusPaid       = 3
	OrderStatusCancelled  = 4
	OrderStatusFailed     = 5
)

// 订单状态对外名称
const (
	OrderStatusNamePending    = "pending"
	OrderStatusNameProcessing = "processing"
	OrderStatusNameCompleted  = "completed"
	OrderStatusNameCancelled  = "cancelled"
	OrderStatusNameFailed     = "failed"
)

// 订单支付状态对外名称
const (
	OrderPaymentStatusAwaiting  = "awaiting"
	OrderPaymentStatusCaptured  = "captured"
	OrderPaymentStatusCancelled = "cancelled"
	OrderPaymentStatusFailed    = "failed"
)

// 卡密状态常量
const (
	CardStatusAvailable = 1
	CardStatusAssigned  = 2
)

// 优惠券常量
const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed"
	CouponStatusInactive = 0
	CouponStatusActive   = 1
)

// 支付记录状态常量
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusExpired = "expired"
)

// 支付方式常量
const (
	PaymentMethodAlipay  = "alipay"
	PaymentMethodWechat  = "wechat"
	PaymentMethodPayJS   = "payjs"
	PaymentMethodCodePay = "codepay"
)

// 回调应答常量
const (
	CallbackReplySuccess = "success"
	CallbackReplyFail    = "fail"
)

// 支付宝回调交易状态
const (
	AlipayTradeStatusSuccess  = "TRADE_SUCCESS"
	AlipayTradeStatusFinished = "TRADE_FINISHED"
)

// 微信回调结果
const (
	WechatResultSuccess = "SUCCESS"
)

// 币种
const (
	CurrencyCNY = "CNY"
)

// 队列常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型
const (
	TaskOrderTimeoutCancel = "order:timeout_cancel"
	TaskOrderPaid          = "order:paid"
	TaskInventoryAlert     = "order:inventory_alert"
	TaskOrderExpireSweep   = "order:expire_sweep"
)

// 订单事件类型
const (
	OrderEventPaid               = "order.paid"
	OrderEventCancelled          = "order.cancelled"
	OrderEventInventoryExhausted = "order.inventory_exhausted"
)
