package cache

import "fmt"

// OrderStatusKey 订单状态快照缓存键
func OrderStatusKey(orderID uint) string {
	return fmt.Sprintf("order:status:%d", orderID)
}

// RateLimitKey 限流计数键
func RateLimitKey(scene, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scene, subject)
}
