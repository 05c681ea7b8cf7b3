package queue

import (
	"encoding/json"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderTimeoutCancel 超时取消任务
	TaskOrderTimeoutCancel = constants.TaskOrderTimeoutCancel
	// TaskOrderPaid 订单已支付事件任务
	TaskOrderPaid = constants.TaskOrderPaid
	// TaskInventoryAlert 库存不足告警任务
	TaskInventoryAlert = constants.TaskInventoryAlert
	// TaskOrderExpireSweep 过期订单巡检任务
	TaskOrderExpireSweep = constants.TaskOrderExpireSweep
)

// TaskOptions 每类任务的队列与重试策略
func TaskOptions(taskType string) []asynq.Option {
	switch taskType {
	case TaskOrderTimeoutCancel:
		return []asynq.Option{asynq.Queue(DefaultQueue), asynq.MaxRetry(3), asynq.Timeout(30 * time.Second)}
	case TaskOrderPaid:
		// 下游按 order_no 去重，保留一天便于排查投递
		return []asynq.Option{asynq.Queue(DefaultQueue), asynq.MaxRetry(5), asynq.Retention(24 * time.Hour)}
	case TaskInventoryAlert:
		return []asynq.Option{asynq.Queue(CriticalQueue), asynq.MaxRetry(10), asynq.Retention(7 * 24 * time.Hour)}
	case TaskOrderExpireSweep:
		return []asynq.Option{asynq.Queue(DefaultQueue), asynq.MaxRetry(0), asynq.Timeout(2 * time.Minute)}
	default:
		return []asynq.Option{asynq.Queue(DefaultQueue)}
	}
}

// OrderTimeoutCancelPayload 超时取消任务载荷
type OrderTimeoutCancelPayload struct {
	OrderID uint `json:"order_id"`
}

// OrderPaidPayload 订单已支付事件载荷
type OrderPaidPayload struct {
	OrderID   uint      `json:"order_id"`
	OrderNo   string    `json:"order_no"`
	ProductID uint      `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method"`
	TradeNo   string    `json:"trade_no"`
	PaidAt    time.Time `json:"paid_at"`
}

// InventoryAlertPayload 库存不足告警载荷
type InventoryAlertPayload struct {
	OrderID    uint      `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	ProductID  uint      `json:"product_id"`
	Wanted     int       `json:"wanted"`
	Available  int64     `json:"available"`
	TradeNo    string    `json:"trade_no"`
	Amount     string    `json:"amount"`
	Method     string    `json:"method"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewOrderTimeoutCancelTask 创建超时取消任务
func NewOrderTimeoutCancelTask(payload OrderTimeoutCancelPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderTimeoutCancel, payload)
}

// NewOrderPaidTask 创建订单已支付事件任务
func NewOrderPaidTask(payload OrderPaidPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderPaid, payload)
}

// NewInventoryAlertTask 创建库存不足告警任务
func NewInventoryAlertTask(payload InventoryAlertPayload) (*asynq.Task, error) {
	return newJSONTask(TaskInventoryAlert, payload)
}

// NewOrderExpireSweepTask 创建过期订单巡检任务
func NewOrderExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOrderExpireSweep, nil)
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}
