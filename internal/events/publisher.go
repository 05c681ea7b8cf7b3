// Package events 订单生命周期事件投递（Kafka）
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/config"

	"github.com/segmentio/kafka-go"
)

// ErrPublisherClosed 投递器已关闭
var ErrPublisherClosed = errors.New("event publisher closed")

const headerEventType = "event-type"

// OrderEvent 订单事件
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    uint      `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	ProductID  uint      `json:"product_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Method     string    `json:"method,omitempty"`
	TradeNo    string    `json:"trade_no,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher 事件投递接口
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// messageWriter kafka.Writer 的最小子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 基于 kafka-go 的投递器，以订单号作为分区键保证同一订单事件有序
type KafkaPublisher struct {
	writer messageWriter
	closed bool
}

// NewPublisher 按配置创建投递器，未启用时返回空实现
func NewPublisher(cfg config.KafkaConfig) Publisher {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if !cfg.Enabled || len(brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return NoopPublisher{}
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        strings.TrimSpace(cfg.Topic),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish 投递事件
func (p *KafkaPublisher) Publish(ctx context.Context, event OrderEvent) error {
	if p == nil || p.writer == nil || p.closed {
		return ErrPublisherClosed
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderNo),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
		},
	})
}

// Close 关闭底层 writer
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil || p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// NoopPublisher 未启用 Kafka 时使用
type NoopPublisher struct{}

// Publish 丢弃事件
func (NoopPublisher) Publish(context.Context, OrderEvent) error { return nil }

// Close 无操作
func (NoopPublisher) Close() error { return nil }
