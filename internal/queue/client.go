package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/logger"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 优先队列（库存告警）
	CriticalQueue = constants.QueueCritical
)

// enqueuer 由 *asynq.Client 实现
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client 结算相关任务的投递端。未启用队列时所有投递都是空操作。
type Client struct {
	backend enqueuer
	timeout time.Duration
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{backend: asynq.NewClient(buildRedisOpt(cfg)), timeout: 3 * time.Second}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.backend != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.backend.Close()
}

// EnqueueOrderTimeoutCancel 在订单到期时取消仍未支付的订单
func (c *Client) EnqueueOrderTimeoutCancel(payload OrderTimeoutCancelPayload, delay time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderTimeoutCancelTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, asynq.ProcessIn(max(delay, 0)), asynq.TaskID("order_timeout_cancel:"+strconv.FormatUint(uint64(payload.OrderID), 10)))
}

// EnqueueOrderPaid 结算成功后投递，由 worker 转发到 Kafka
func (c *Client) EnqueueOrderPaid(payload OrderPaidPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderPaidTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task)
}

// EnqueueInventoryAlert 已付款但无卡可发，需人工对账
func (c *Client) EnqueueInventoryAlert(payload InventoryAlertPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewInventoryAlertTask(payload)
	if err != nil {
		return err
	}
	// 网关重复通知同一笔交易时只保留一条告警
	return c.enqueue(task, asynq.TaskID(fmt.Sprintf("inventory_alert:%d:%s", payload.OrderID, payload.TradeNo)))
}

func (c *Client) enqueue(task *asynq.Task, extra ...asynq.Option) error {
	opts := append(TaskOptions(task.Type()), extra...)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_, err := c.backend.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// BuildServerConfig 生成 worker 配置，默认告警队列权重更高
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := 10
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 2}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			queues = cfg.Queues
		}
	}
	return buildRedisOpt(cfg), asynq.Config{
		Concurrency:  concurrency,
		Queues:       queues,
		ErrorHandler: asynq.ErrorHandlerFunc(logTaskFailure),
	}
}

func logTaskFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	log := logger.SW("task_type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
	if retried >= maxRetry {
		log.Errorw("worker_task_exhausted")
		return
	}
	log.Warnw("worker_task_failed")
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host, port := "127.0.0.1", 6379
	opt := asynq.RedisClientOpt{}
	if cfg != nil {
		if h := strings.TrimSpace(cfg.Host); h != "" {
			host = h
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		opt.Password = cfg.Password
		opt.DB = cfg.DB
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	return opt
}
